package security

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	v := NewURL()

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "public https", url: "https://api.perplexity.ai"},
		{name: "public http", url: "http://example.com/path"},
		{name: "public with port", url: "https://example.com:8443"},

		{name: "loopback IP", url: "http://127.0.0.1:8080", wantErr: "loopback"},
		{name: "loopback IPv6", url: "http://[::1]/", wantErr: "loopback"},
		{name: "mapped loopback", url: "http://[::ffff:127.0.0.1]/", wantErr: "loopback"},
		{name: "localhost", url: "http://localhost:9000", wantErr: "blocked host"},

		{name: "rfc1918 ten", url: "http://10.0.0.5", wantErr: "private"},
		{name: "rfc1918 172", url: "http://172.16.1.1", wantErr: "private"},
		{name: "rfc1918 192", url: "http://192.168.1.10", wantErr: "private"},

		{name: "cloud metadata", url: "http://169.254.169.254/latest/meta-data/", wantErr: "link-local"},
		{name: "metadata hostname", url: "http://metadata.google.internal/", wantErr: "blocked host"},
		{name: "unspecified", url: "http://0.0.0.0:80", wantErr: "unspecified"},

		{name: "file scheme", url: "file:///etc/passwd", wantErr: "unsupported scheme"},
		{name: "ftp scheme", url: "ftp://example.com", wantErr: "unsupported scheme"},
		{name: "no scheme", url: "example.com", wantErr: "unsupported scheme"},
		{name: "empty host", url: "https://", wantErr: "empty hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.url)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate(%q) returned error: %v", tt.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) succeeded, want error containing %q", tt.url, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(%q) error = %q, want substring %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHostnamePassesStaticCheck(t *testing.T) {
	v := NewURL()

	// A hostname that would resolve to a private IP passes static
	// validation; SafeTransport catches it at dial time.
	if err := v.Validate("https://internal.corp.example"); err != nil {
		t.Fatalf("Validate() returned error for unresolved hostname: %v", err)
	}
}

func TestSafeTransportBlocksLoopbackDial(t *testing.T) {
	v := NewURL()

	_, err := v.safeDialContext(t.Context(), "tcp", "127.0.0.1:80")
	if err == nil {
		t.Fatal("safeDialContext allowed a loopback dial")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Errorf("error = %q, want loopback rejection", err)
	}
}
