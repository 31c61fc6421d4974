// Package transport provides HTTP request/response types for the verification domain.
package transport

import "github.com/attestry/attestry/internal/verification/domain"

// InputFilesRequest is the body for uploading files to a session.
type InputFilesRequest struct {
	Files []domain.PathContent `json:"files"`
}

// SolcJSONRequest is the body for uploading a solc standard-JSON input.
type SolcJSONRequest struct {
	SolcJSON map[string]any `json:"solcJson"`
}

// VerifyValidatedRequest declares verification targets for session wrappers.
type VerifyValidatedRequest struct {
	Contracts []ContractTarget `json:"contracts"`
}

// ContractTarget binds one wrapper to a chain and address.
type ContractTarget struct {
	VerificationID string `json:"verificationId"`
	ChainID        string `json:"chainId"`
	Address        string `json:"address"`
	CreatorTxHash  string `json:"creatorTxHash,omitempty"`
}

// Create2SessionRequest is the body for checking a CREATE2 claim against a
// session wrapper.
type Create2SessionRequest struct {
	VerificationID  string `json:"verificationId"`
	DeployerAddress string `json:"deployerAddress"`
	Salt            string `json:"salt"`
	Create2Address  string `json:"create2Address"`
	ConstructorArgs string `json:"constructorArgs,omitempty"`
}

// Create2CompileRequest is the body for precompiling a wrapper's creation
// bytecode.
type Create2CompileRequest struct {
	VerificationID string `json:"verificationId"`
}

// VerifyRequest is the body for the stateless verification endpoint.
type VerifyRequest struct {
	Files         []domain.PathContent `json:"files"`
	ChainID       string               `json:"chainId"`
	Address       string               `json:"address"`
	CreatorTxHash string               `json:"creatorTxHash,omitempty"`
}

// VerifyEtherscanRequest is the body for the stateless explorer-import
// endpoint.
type VerifyEtherscanRequest struct {
	ChainID string `json:"chainId"`
	Address string `json:"address"`
}

// Create2VerifyRequest is the body for the stateless CREATE2 endpoint.
type Create2VerifyRequest struct {
	Files           []domain.PathContent `json:"files"`
	DeployerAddress string               `json:"deployerAddress"`
	Salt            string               `json:"salt"`
	Create2Address  string               `json:"create2Address"`
	ConstructorArgs string               `json:"constructorArgs,omitempty"`
}

// VerifyResponse is the response for the stateless endpoints.
type VerifyResponse struct {
	Result domain.WrapperView `json:"result"`
}

// CheckResult is one entry of the check-by-addresses response.
type CheckResult struct {
	Address  string            `json:"address"`
	Statuses map[string]string `json:"chainStatuses"` // chain id -> stored status
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
