package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "loopback IP", addr: "127.0.0.1:8080"},
		{name: "all interfaces", addr: "0.0.0.0:8080"},
		{name: "hostname", addr: "api.internal:8080"},
		{name: "auto-assign port", addr: ":0"},
		{name: "max port", addr: ":65535"},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "empty port", addr: "localhost:", wantErr: true},
		{name: "non-numeric port", addr: ":http", wantErr: true},
		{name: "port too large", addr: ":65536", wantErr: true},
		{name: "host with whitespace", addr: "bad host:8080", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}
