//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/attestry/attestry/internal/config"
	"github.com/attestry/attestry/internal/evm"
	"github.com/attestry/attestry/internal/server"
	"github.com/attestry/attestry/internal/storage"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("attestry"),
		postgres.WithUsername("attestry"),
		postgres.WithPassword("attestry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the attestry server in-process against the container
func startServerE(connString string) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Session: config.SessionConfig{
			TTLMinutes:     30,
			SweepMinutes:   10,
			CookieName:     "attestry.sid",
			MaxBatchSize:   10,
			MaxSessionSize: 20 * 1024 * 1024,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Compiler:  config.CompilerConfig{URL: "http://localhost:5556", TimeoutSeconds: 5},
		Metadata:  config.MetadataConfig{GatewayURL: "https://ipfs.io/ipfs/", TimeoutSeconds: 5},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: false, MaxBodySizeMB: 50},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server: %w", err)
	}

	return httptest.NewServer(srv.Handler()), store, nil
}

// newSessionClient returns an HTTP client with a cookie jar so consecutive
// requests share one verification session.
func newSessionClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// postJSON posts a JSON body and decodes the JSON response into out.
func postJSON(t *testing.T, client *http.Client, url string, body, out any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), "response body: %s", data)
	}
	return resp
}

// getJSON fetches a URL and decodes the JSON response into out.
func getJSON(t *testing.T, client *http.Client, url string, out any) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), "response body: %s", data)
	}
	return resp
}

// buildMetadata returns a minimal Solidity metadata document requiring the
// given source content at sourcePath.
func buildMetadata(t *testing.T, contractName, sourcePath, sourceContent string) string {
	t.Helper()
	doc := map[string]any{
		"language": "Solidity",
		"compiler": map[string]any{"version": "0.8.26+commit.8a97fa7a"},
		"settings": map[string]any{
			"compilationTarget": map[string]string{sourcePath: contractName},
		},
		"sources": map[string]any{
			sourcePath: map[string]any{
				"keccak256": evm.Keccak256Hex([]byte(sourceContent)),
			},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}
