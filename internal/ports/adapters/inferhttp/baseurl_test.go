package inferhttp

import "testing"

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "local http", baseURL: "http://127.0.0.1:8000"},
		{name: "https with path", baseURL: "https://infer.example.com/accent/"},
		{name: "empty", baseURL: "  ", wantErr: true},
		{name: "reject non-absolute URL", baseURL: "infer.example.com", wantErr: true},
		{name: "reject other scheme", baseURL: "ftp://infer.example.com", wantErr: true},
		{name: "reject userinfo", baseURL: "https://user:pw@infer.example.com", wantErr: true},
		{name: "reject query", baseURL: "https://infer.example.com?x=1", wantErr: true},
		{name: "reject fragment", baseURL: "https://infer.example.com#top", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.baseURL)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
