// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/attestry/attestry/internal/engine"
	"github.com/attestry/attestry/internal/importer"
	"github.com/attestry/attestry/internal/session"
	"github.com/attestry/attestry/internal/verification/domain"
)

// Service defines the verification service interface for HTTP transport.
type Service interface {
	SaveFiles(ctx context.Context, sess *domain.Session, pairs []domain.PathContent) (int, error)
	SetTargets(sess *domain.Session, targets []domain.Target) error
	SelectVerifiable(sess *domain.Session) (ready, waiting []*domain.Wrapper)
	VerifyWrappers(ctx context.Context, sess *domain.Session, wrappers []*domain.Wrapper)
	ImportFromExplorer(ctx context.Context, sess *domain.Session, chainID, address string) error
	VerifyCreate2(ctx context.Context, sess *domain.Session, verificationID string, req domain.Create2Request) error
	PrecompileCreate2(ctx context.Context, sess *domain.Session, verificationID string) error
	VerifyDirect(ctx context.Context, files []domain.PathContent, chainID, address, creatorTxHash string) (*domain.Wrapper, error)
	ImportAndVerify(ctx context.Context, chainID, address string) (*domain.Wrapper, error)
	VerifyCreate2Stateless(ctx context.Context, files []domain.PathContent, req domain.Create2Request) (*domain.Wrapper, error)
}

// Checker reads stored verification statuses.
type Checker interface {
	CheckAddresses(ctx context.Context, chainID string, addresses []string) (map[string]string, error)
}

// Handler handles HTTP requests for verification.
type Handler struct {
	svc        Service
	sessions   *session.Store
	checker    Checker
	cookieName string
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc Service, sessions *session.Store, checker Checker, cookieName string) *Handler {
	return &Handler{svc: svc, sessions: sessions, checker: checker, cookieName: cookieName}
}

// RegisterRoutes registers the verification routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/input-files", h.handleInputFiles)
		r.Post("/input-solc-json", h.handleInputSolcJSON)
		r.Get("/data", h.handleSessionData)
		r.Post("/verify-validated", h.handleVerifyValidated)
		r.Post("/import/{chainId}/{address}", h.handleImport)
		r.Post("/verify/create2", h.handleSessionCreate2)
		r.Post("/verify/create2/compile", h.handleCreate2Compile)
		r.Post("/clear", h.handleClear)
	})

	r.Post("/verify", h.handleVerify)
	r.Post("/verify/etherscan", h.handleVerifyEtherscan)
	r.Post("/verify/create2", h.handleVerifyCreate2)
	r.Get("/check-by-addresses", h.handleCheckByAddresses)
}

// acquireSession resolves the request's session from the cookie, creating
// one when needed, and locks it. The caller must invoke the returned release
// function.
func (h *Handler) acquireSession(w http.ResponseWriter, r *http.Request) (*domain.Session, func()) {
	var id string
	if c, err := r.Cookie(h.cookieName); err == nil {
		id = c.Value
	}

	sess, created := h.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	sess.Lock()
	return sess, sess.Unlock
}

func (h *Handler) handleInputFiles(w http.ResponseWriter, r *http.Request) {
	var req InputFilesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No files provided")
		return
	}

	sess, release := h.acquireSession(w, r)
	defer release()

	if _, err := h.svc.SaveFiles(r.Context(), sess, req.Files); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleInputSolcJSON(w http.ResponseWriter, r *http.Request) {
	var req SolcJSONRequest
	if !decodeBody(w, r, &req) {
		return
	}

	files := explodeSolcJSON(req.SolcJSON)
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No sources found in solc JSON input")
		return
	}

	sess, release := h.acquireSession(w, r)
	defer release()

	if _, err := h.svc.SaveFiles(r.Context(), sess, files); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// explodeSolcJSON extracts the source files of a solc standard-JSON input.
func explodeSolcJSON(input map[string]any) []domain.PathContent {
	sources, ok := input["sources"].(map[string]any)
	if !ok {
		return nil
	}
	var files []domain.PathContent
	for path, v := range sources {
		src, ok := v.(map[string]any)
		if !ok {
			continue
		}
		content, ok := src["content"].(string)
		if !ok {
			continue
		}
		files = append(files, domain.PathContent{Path: path, Content: content})
	}
	return files
}

func (h *Handler) handleSessionData(w http.ResponseWriter, r *http.Request) {
	sess, release := h.acquireSession(w, r)
	defer release()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleVerifyValidated(w http.ResponseWriter, r *http.Request) {
	var req VerifyValidatedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Contracts) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No contracts selected")
		return
	}

	sess, release := h.acquireSession(w, r)
	defer release()

	targets := make([]domain.Target, 0, len(req.Contracts))
	for _, target := range req.Contracts {
		targets = append(targets, domain.Target{
			VerificationID: target.VerificationID,
			ChainID:        target.ChainID,
			Address:        target.Address,
			CreatorTxHash:  target.CreatorTxHash,
		})
	}
	// All-or-nothing: a malformed entry must not leave earlier targets set.
	if err := h.svc.SetTargets(sess, targets); err != nil {
		h.writeDomainError(w, err)
		return
	}

	ready, _ := h.svc.SelectVerifiable(sess)
	h.svc.VerifyWrappers(r.Context(), sess, ready)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainId")
	address := chi.URLParam(r, "address")

	sess, release := h.acquireSession(w, r)
	defer release()

	if err := h.svc.ImportFromExplorer(r.Context(), sess, chainID, address); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleSessionCreate2(w http.ResponseWriter, r *http.Request) {
	var req Create2SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, release := h.acquireSession(w, r)
	defer release()

	err := h.svc.VerifyCreate2(r.Context(), sess, req.VerificationID, domain.Create2Request{
		DeployerAddress: req.DeployerAddress,
		Salt:            req.Salt,
		Create2Address:  req.Create2Address,
		ConstructorArgs: req.ConstructorArgs,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleCreate2Compile(w http.ResponseWriter, r *http.Request) {
	var req Create2CompileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, release := h.acquireSession(w, r)
	defer release()

	if err := h.svc.PrecompileCreate2(r.Context(), sess, req.VerificationID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookieName); err == nil {
		h.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wrapper, err := h.svc.VerifyDirect(r.Context(), req.Files, req.ChainID, req.Address, req.CreatorTxHash)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Result: wrapper.View()})
}

func (h *Handler) handleVerifyEtherscan(w http.ResponseWriter, r *http.Request) {
	var req VerifyEtherscanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wrapper, err := h.svc.ImportAndVerify(r.Context(), req.ChainID, req.Address)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Result: wrapper.View()})
}

func (h *Handler) handleVerifyCreate2(w http.ResponseWriter, r *http.Request) {
	var req Create2VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wrapper, err := h.svc.VerifyCreate2Stateless(r.Context(), req.Files, domain.Create2Request{
		DeployerAddress: req.DeployerAddress,
		Salt:            req.Salt,
		Create2Address:  req.Create2Address,
		ConstructorArgs: req.ConstructorArgs,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Result: wrapper.View()})
}

func (h *Handler) handleCheckByAddresses(w http.ResponseWriter, r *http.Request) {
	addresses := splitParam(r.URL.Query().Get("addresses"))
	chainIDs := splitParam(r.URL.Query().Get("chainIds"))
	if len(addresses) == 0 || len(chainIDs) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "addresses and chainIds query parameters are required")
		return
	}

	// statuses per chain, then pivoted per address.
	perChain := make(map[string]map[string]string, len(chainIDs))
	for _, chainID := range chainIDs {
		statuses, err := h.checker.CheckAddresses(r.Context(), chainID, addresses)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check addresses")
			return
		}
		perChain[chainID] = statuses
	}

	results := make([]CheckResult, 0, len(addresses))
	for _, address := range addresses {
		entry := CheckResult{Address: address, Statuses: make(map[string]string, len(chainIDs))}
		for _, chainID := range chainIDs {
			if status, ok := perChain[chainID][address]; ok {
				entry.Statuses[chainID] = status
			} else {
				entry.Statuses[chainID] = string(domain.StatusFalse)
			}
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, results)
}

func splitParam(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// writeDomainError maps service errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, importer.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Contract is not verified on the explorer")
	case errors.Is(err, importer.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Explorer rate limit reached, try again later")
	case errors.Is(err, domain.ErrSessionTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
	case errors.Is(err, engine.ErrUnsupportedChain):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Chain is not supported")
	case errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidChainID),
		errors.Is(err, domain.ErrMalformedRequest),
		errors.Is(err, domain.ErrNothingToVerify),
		errors.Is(err, domain.ErrNotVerifiable):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed")
	}
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
