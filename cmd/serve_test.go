package cmd

import (
	"testing"
)

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		httpAddr string
		expected string
	}{
		{
			name:     "empty base URL defaults to localhost with addr port",
			baseURL:  "",
			httpAddr: ":8080",
			expected: "http://localhost:8080",
		},
		{
			name:     "empty base URL with host and port",
			baseURL:  "",
			httpAddr: "0.0.0.0:9000",
			expected: "http://localhost:9000",
		},
		{
			name:     "explicit base URL passes through",
			baseURL:  "https://calgate.example.com",
			httpAddr: ":8080",
			expected: "https://calgate.example.com",
		},
		{
			name:     "trailing slash is trimmed",
			baseURL:  "https://calgate.example.com/",
			httpAddr: ":8080",
			expected: "https://calgate.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolveBaseURL(tt.baseURL, tt.httpAddr)
			if result != tt.expected {
				t.Errorf("resolveBaseURL(%q, %q) = %q, want %q", tt.baseURL, tt.httpAddr, result, tt.expected)
			}
		})
	}
}

func TestNewServeCmdDefaults(t *testing.T) {
	cmd := newServeCmd()

	defaults := map[string]string{
		"transport":       "stdio",
		"http-addr":       ":8080",
		"metrics-enabled": "false",
		"metrics-addr":    ":9090",
	}
	for name, want := range defaults {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("expected flag %q to be registered", name)
		}
		if flag.DefValue != want {
			t.Errorf("flag %q default = %q, want %q", name, flag.DefValue, want)
		}
	}
}

func TestRunServeRequiresCredentials(t *testing.T) {
	err := runServe(serveOptions{Transport: "stdio"})
	if err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}
