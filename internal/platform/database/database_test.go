package database

import (
	"testing"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/platform/config"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid", "postgres://ef:ef@localhost:5432/englishfamily", false},
		{"empty", "", true},
		{"invalid", "not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_InvalidPoolSize(t *testing.T) {
	_, err := Open(t.Context(), config.DatabaseConfig{
		URL:      "postgres://ef:ef@localhost:5432/englishfamily",
		MaxConns: 1,
		MinConns: 5,
	})
	if err == nil {
		t.Fatal("Open() should reject min conns above max conns")
	}
}

func TestOpen_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	_, err := Open(t.Context(), config.DatabaseConfig{
		URL:      "postgres://ef:ef@localhost:59999/nonexistent?connect_timeout=1",
		MaxConns: 5,
		MinConns: 1,
	})
	if err == nil {
		t.Fatal("Open() should return error for unreachable host")
	}
}
