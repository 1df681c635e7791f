package bootstrap

import (
	"testing"

	"github.com/krobus00/quote-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMigrationTarget(t *testing.T) {
	env := &config.EnvConfig{Database: map[string]config.DatabaseConfig{
		"quote_gateway": {DSN: "postgres://localhost:5432/quote_gateway"},
		"empty":         {},
	}}

	dsn, dir, err := resolveMigrationTarget(env, " quote_gateway ", "up")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/quote_gateway", dsn)
	assert.Equal(t, "migration/postgresql/quote_gateway", dir)

	tests := []struct {
		name     string
		env      *config.EnvConfig
		database string
		action   string
		want     error
	}{
		{"unknown action", env, "quote_gateway", "sideways", errUnknownMigrationAction},
		{"unknown database", env, "market_data", "up", errUnknownMigrationDatabase},
		{"database without dsn", env, "empty", "status", errUnknownMigrationDatabase},
		{"blank database", env, "", "up", errUnknownMigrationDatabase},
		{"no config loaded", nil, "quote_gateway", "up", errUnknownMigrationDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resolveMigrationTarget(tt.env, tt.database, tt.action)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
