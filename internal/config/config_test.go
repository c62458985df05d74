package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "@every 15m", cfg.Jobs.AuditVerifySchedule)
	assert.False(t, cfg.RateLimitEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/contracts?sslmode=disable")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTOSAVE_WINDOW", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Security.AutosaveWindow)
	assert.True(t, cfg.RateLimitEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"postgres needs url", map[string]string{"STORE_DRIVER": "postgres"}, ErrMissingDatabaseURL},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}, ErrInvalidStoreDriver},
		{"unknown cache", map[string]string{"STORE_DRIVER": "memory", "CACHE_DRIVER": "disk"}, ErrInvalidCacheDriver},
		{"production default secret", map[string]string{"STORE_DRIVER": "memory", "ENV": "production"}, ErrMissingJWTSecret},
		{"production header auth", map[string]string{
			"STORE_DRIVER":           "memory",
			"ENV":                    "production",
			"JWT_SECRET":             "s3cr3t",
			"AUTH_ALLOW_USER_HEADER": "true",
		}, ErrHeaderAuthInProd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
