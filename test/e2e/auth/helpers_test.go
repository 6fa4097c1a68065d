//go:build e2e

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * This includes container setup, service operations, and assertions.
 */

const (
	testImageName = "keyhouse-auth-test:latest"
	redisImage    = "redis:7-alpine"

	testUsername = "alice"
	testPassword = "Alice123!"
)

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")

	// Build the Docker image once before all tests
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	// Run all tests
	exitCode := m.Run()

	// Clean up the Docker image after all tests complete
	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// buildDockerImage builds the test Docker image if it doesn't exist.
func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

// cleanupDockerImage removes the test Docker image.
func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// authEnv is the environment every auth container starts with. Rate limits
// are raised so tests making rapid requests do not trip them.
func authEnv() map[string]string {
	return map[string]string{
		"AUTH_DATABASE_FILE":               "/data/auth.db",
		"AUTH_PEPPER_FILE":                 "/data/pepper",
		"AUTH_SECRET_FILE":                 "/data/secret",
		"AUTH_ISSUER":                      "keyhouse-auth",
		"AUTH_DEBUG":                       "true", // plain http, so cookies must not be Secure
		"AUTH_LOGIN_ATTEMPTS_BEFORE_BLOCK": "3",
		"ENV":                              "test",
		"LOG_LEVEL":                        "info",
		"LOG_FORMAT":                       "json",
		"RATELIMIT_STRICT_REQUESTS":        "1000",
		"RATELIMIT_STRICT_WINDOW_SEC":      "60",
		"RATELIMIT_STRICT_BURST":           "1000",
		"RATELIMIT_MODERATE_REQUESTS":      "1000",
		"RATELIMIT_MODERATE_BURST":         "1000",
	}
}

// startAuthContainer starts the auth service with env and returns its base URL.
func startAuthContainer(t *testing.T, env map[string]string, networks ...string) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		Networks:     networks,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// setupAuthContainer starts the auth service without redis.
func setupAuthContainer(t *testing.T) string {
	t.Helper()
	return startAuthContainer(t, authEnv())
}

// setupAuthContainerWithDefaultRateLimits starts the auth service with the
// production rate limits.
func setupAuthContainerWithDefaultRateLimits(t *testing.T) string {
	t.Helper()
	env := authEnv()
	for k := range env {
		if strings.HasPrefix(k, "RATELIMIT_") {
			delete(env, k)
		}
	}
	return startAuthContainer(t, env)
}

// setupAuthWithRedis starts redis and the auth service on a shared network.
// The redis container is returned so tests can stop and restart it.
func setupAuthWithRedis(t *testing.T) (string, testcontainers.Container) {
	t.Helper()
	ctx := context.Background()

	nw, err := network.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nw.Remove(ctx) })

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          redisImage,
			ExposedPorts:   []string{"6379/tcp"},
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {"redis"}},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis: %v", err)
		}
	})

	env := authEnv()
	env["REDIS_URL"] = "redis://redis:6379/0"
	env["REDIS_HEALTHCHECK_INTERVAL"] = "500ms"

	return startAuthContainer(t, env, nw.Name), redisC
}

// registerAndLogin registers the test user and runs the code flow.
func registerAndLogin(t *testing.T, client *authsdk.SDKClient) *authsdk.TokenResponse {
	t.Helper()

	_, err := client.Register(t.Context(), authsdk.RegistrationRequest{
		Login:    testUsername,
		Password: testPassword,
		Name:     "Alice",
		Email:    "alice@example.com",
	})
	require.NoError(t, err)

	tok, err := client.Login(t.Context(), testUsername, testPassword)
	require.NoError(t, err)
	assertTokenResponse(t, tok)
	return tok
}

// assertTokenResponse validates a successful token response.
func assertTokenResponse(t *testing.T, resp *authsdk.TokenResponse) {
	t.Helper()
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.AccessToken, "access_token should not be empty")
	require.Equal(t, "bearer", resp.TokenType)
	require.Positive(t, resp.ExpiresIn)
}

// assertAPIError checks that err is an APIError with the given status.
func assertAPIError(t *testing.T, err error, status int, context string) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "%s: expected APIError, got %v", context, err)
	require.Equal(t, status, apiErr.StatusCode, context)
	return apiErr
}

// assertHealthy validates that a health check response indicates a healthy service.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}

