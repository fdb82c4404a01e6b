package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, []string{"en"}, cfg.Locale.Supported)
	assert.Equal(t, "en", cfg.Locale.Default)
	assert.Equal(t, 24*time.Hour, cfg.Upload.TTL)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxSize)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LOCALES", "en,fr_CA")
	t.Setenv("DEFAULT_LOCALE", "fr_CA")
	t.Setenv("TEMP_FILE_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "https://editor.example.org,https://admin.example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"en", "fr_CA"}, cfg.Locale.Supported)
	assert.Equal(t, "fr_CA", cfg.Locale.Default)
	assert.Equal(t, 2*time.Hour, cfg.Upload.TTL)
	assert.Equal(t, []string{"https://editor.example.org", "https://admin.example.org"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown database driver",
			env:  map[string]string{"DATABASE_DRIVER": "mysql"},
		},
		{
			name: "unknown storage type",
			env:  map[string]string{"STORAGE_TYPE": "ftp"},
		},
		{
			name: "s3 without bucket",
			env:  map[string]string{"STORAGE_TYPE": "s3"},
		},
		{
			name: "default locale not supported",
			env:  map[string]string{"LOCALES": "en", "DEFAULT_LOCALE": "de"},
		},
		{
			name: "wildcard cors origin",
			env:  map[string]string{"CORS_ORIGINS": "*"},
		},
		{
			name: "non-positive upload size",
			env:  map[string]string{"MAX_UPLOAD_SIZE": "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
