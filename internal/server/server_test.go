package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 18765 {
		t.Errorf("Expected default port 18765, got %d", config.Port)
	}

	if config.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("Expected ReadHeaderTimeout 10s, got %v", config.ReadHeaderTimeout)
	}

	if config.WriteTimeout < 2*time.Minute {
		t.Errorf("Expected WriteTimeout to cover document generation, got %v", config.WriteTimeout)
	}

	if config.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected ShutdownTimeout 5s, got %v", config.ShutdownTimeout)
	}
}

func TestNew(t *testing.T) {
	server := New(DefaultConfig(), nil)

	if server == nil {
		t.Fatal("Expected server to be created")
	}

	if server.Port() != 18765 {
		t.Errorf("Expected port 18765, got %d", server.Port())
	}

	if isRunning(server) {
		t.Error("Expected server to not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0 // Use random port
	server := New(config, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if !isRunning(server) {
		t.Error("Expected server to be running")
	}

	if server.Port() == 0 {
		t.Error("Expected non-zero port")
	}

	// Try to start again (should fail)
	if err := server.Start(); err == nil {
		t.Error("Expected error when starting already running server")
	}

	if err := server.Stop(); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}

	if isRunning(server) {
		t.Error("Expected server to be stopped")
	}

	// Stop again (should succeed, no-op)
	if err := server.Stop(); err != nil {
		t.Errorf("Expected no error when stopping already stopped server: %v", err)
	}
}

func TestURL(t *testing.T) {
	config := DefaultConfig()
	config.Port = 12345
	server := New(config, nil)

	expectedURL := "http://127.0.0.1:12345"
	if server.URL() != expectedURL {
		t.Errorf("Expected URL %s, got %s", expectedURL, server.URL())
	}
}

func TestServerServesFrontend(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get(server.URL() + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if !strings.Contains(string(body), "<title>EchoDoc</title>") {
		t.Errorf("Expected the EchoDoc page, got %d bytes", len(body))
	}
}

func TestCORS(t *testing.T) {
	server := New(DefaultConfig(), nil)

	tests := []struct {
		origin string
		allow  bool
	}{
		{"http://127.0.0.1:18765", true},
		{"http://localhost:3000", true},
		{"https://example.com", false},
		{"http://localhost.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			w := httptest.NewRecorder()

			server.Router().ServeHTTP(w, req)

			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.allow && got != tt.origin {
				t.Errorf("Expected origin %s to be allowed, got %q", tt.origin, got)
			}
			if !tt.allow && got != "" {
				t.Errorf("Expected origin %s to be refused, got %q", tt.origin, got)
			}
		})
	}
}

func TestIsLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://127.0.0.1:18765", true},
		{"http://localhost", true},
		{"http://[::1]:8080", true},
		{"file:///index.html", false},
		{"http://192.168.1.10", false},
		{"::", false},
	}

	for _, tt := range tests {
		if got := isLocalOrigin(tt.origin); got != tt.want {
			t.Errorf("isLocalOrigin(%q): expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}

func TestMultipleStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Port = 0
	server := New(config, nil)

	for i := 0; i < 3; i++ {
		if err := server.Start(); err != nil {
			t.Fatalf("Iteration %d: failed to start server: %v", i, err)
		}
		if err := server.Stop(); err != nil {
			t.Fatalf("Iteration %d: failed to stop server: %v", i, err)
		}
	}
}

func isRunning(s *Server) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
