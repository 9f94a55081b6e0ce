package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/config"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/server"
)

// TestServer wraps a server instance for testing
type TestServer struct {
	Server  *server.Server
	Engine  *engine.Engine
	BaseURL string
	Config  *config.Config
	TempDir string
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	dataDir string
	mutate  func(*config.Config)
}

// WithDataDir sets the data directory instead of a fresh temp dir
func WithDataDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.dataDir = dir
	}
}

// WithConfig adjusts the engine config before the server starts
func WithConfig(mutate func(*config.Config)) TestServerOption {
	return func(c *testServerConfig) {
		c.mutate = mutate
	}
}

// StartTestServer creates and starts a test server backed by a fresh engine
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables so PERMLEARN_LOG_LEVEL can raise
	// verbosity for a failing CI run
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load("../.env")
	if level := os.Getenv("PERMLEARN_LOG_LEVEL"); level != "" {
		logging.SetLevel(logging.ParseLevel(level))
	}

	// Create temp directory for test data
	tempDir, err := os.MkdirTemp("", "permlearn-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	dataDir := cfg.dataDir
	if dataDir == "" {
		dataDir = tempDir
	}

	// Build config
	appConfig := &config.Config{DataDir: dataDir}
	if cfg.mutate != nil {
		cfg.mutate(appConfig)
	}

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	// Initialize engine
	eng, err := engine.New(appConfig)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	// Configure server
	serverConfig := server.DefaultConfig()
	serverConfig.Port = port

	// Create server
	srv := server.New(serverConfig, eng)

	// Start server in background
	go func() {
		_ = srv.Start()
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		Engine:  eng,
		BaseURL: baseURL,
		Config:  appConfig,
		TempDir: tempDir,
		port:    port,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}

	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/status")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
