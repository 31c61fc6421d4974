//go:build e2e

package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthEndpoints(t *testing.T) {
	client := &http.Client{}

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		var body map[string]string
		resp := getJSON(t, client, testCtx.TestServer.URL+path, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", body["status"], path)
	}
}
