package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

func loadFrom(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(t, map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.True(t, cfg.Postgres.AutoMigrate)
	assert.Equal(t, "localhost", cfg.Redis.Host)

	assert.Equal(t, "care-auth", cfg.JWT.Issuer)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry.Duration)
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTokenExpiry.Duration)
	assert.Equal(t, 12, cfg.Security.BCryptCost)

	assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.BaseDuration.Duration)
	assert.Equal(t, time.Hour, cfg.Lockout.Window.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Lockout.Cap.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Lockout.RecordTTL.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Lockout.StoreTimeout.Duration)
	assert.Equal(t, 2, cfg.Lockout.StoreRetries)
	assert.False(t, cfg.Lockout.FailOpen)

	assert.Equal(t, 10*time.Minute, cfg.Recovery.OTPTTL.Duration)
	assert.Equal(t, 5, cfg.Recovery.OTPMaxAttempts)
	assert.Equal(t, time.Hour, cfg.Recovery.ResetTokenTTL.Duration)

	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, "development", cfg.Env)
	assert.NotEmpty(t, cfg.CORS.AllowedOrigins)
	assert.NotEmpty(t, cfg.CORS.AllowedMethods)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := loadFrom(t, map[string]string{
		"JWT_SECRET":              testSecret,
		"SERVER_PORT":             "9090",
		"POSTGRES_HOST":           "postgres.example.com",
		"JWT_ACCESS_TOKEN_EXPIRY": "30m",
		"LOCKOUT_FAIL_OPEN":       "true",
		"LOCKOUT_RECORD_TTL":      "2d",
		"GOOGLE_CLIENT_ID":        "client.apps.googleusercontent.com",
		"GOOGLE_AUDIENCES":        "ios-client,android-client",
		"ENV":                     "production",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres.example.com", cfg.Postgres.Host)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenExpiry.Duration)
	assert.True(t, cfg.Lockout.FailOpen)
	assert.Equal(t, 48*time.Hour, cfg.Lockout.RecordTTL.Duration)
	assert.True(t, cfg.Google.Enabled())
	assert.Equal(t, []string{"ios-client", "android-client"}, cfg.Google.Audiences)
	assert.Equal(t, "production", cfg.Env)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "short secret",
			env:  map[string]string{"JWT_SECRET": "short"},
			want: "JWT_SECRET",
		},
		{
			name: "weak bcrypt cost",
			env:  map[string]string{"JWT_SECRET": testSecret, "BCRYPT_COST": "4"},
			want: "BCRYPT_COST",
		},
		{
			name: "record ttl shorter than cap",
			env:  map[string]string{"JWT_SECRET": testSecret, "LOCKOUT_RECORD_TTL": "2h"},
			want: "LOCKOUT_RECORD_TTL",
		},
		{
			name: "zero attempts",
			env:  map[string]string{"JWT_SECRET": testSecret, "LOCKOUT_MAX_ATTEMPTS": "0"},
			want: "LOCKOUT_MAX_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_LowBCryptCostAllowedInTests(t *testing.T) {
	cfg, err := loadFrom(t, map[string]string{"JWT_SECRET": testSecret, "BCRYPT_COST": "4", "ENV": "test"})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Security.BCryptCost)
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := loadFrom(t, map[string]string{})
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30d":   30 * 24 * time.Hour,
		"1d12h": 36 * time.Hour,
		"250ms": 250 * time.Millisecond,
		"15m":   15 * time.Minute,
		"":      0,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
	_, err = ParseDuration("abc")
	assert.Error(t, err)
}
