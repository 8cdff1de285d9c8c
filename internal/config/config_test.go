package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTestConfig() *Config {
	return &Config{
		Env:        "development",
		Port:       "8410",
		JWTSecret:  "secure-secret-at-least-32-chars-long",
		DBPassword: "secure-password",
		DBSSLMode:  "disable",
		LedgerURL:  "http://localhost:8490",
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid development config", func(t *testing.T) {
		assert.NoError(t, validTestConfig().Validate())
	})

	t.Run("missing port", func(t *testing.T) {
		c := validTestConfig()
		c.Port = ""
		assert.Error(t, c.Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		c := validTestConfig()
		c.JWTSecret = ""
		assert.Error(t, c.Validate())
	})

	t.Run("missing ledger url", func(t *testing.T) {
		c := validTestConfig()
		c.LedgerURL = ""
		assert.Error(t, c.Validate())
	})
}

func TestConfig_ValidateProduction(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"default jwt secret rejected", func(c *Config) { c.JWTSecret = "your-secret-key-change-in-production" }, true},
		{"short jwt secret rejected", func(c *Config) { c.JWTSecret = "short" }, true},
		{"weak db password rejected", func(c *Config) { c.DBPassword = "password" }, true},
		{"missing ledger api key rejected", func(c *Config) { c.LedgerAPIKey = "" }, true},
		{"strong settings accepted", func(c *Config) {}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validTestConfig()
			c.Env = "production"
			c.DBSSLMode = "require"
			c.LedgerAPIKey = "ledger-key"
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
