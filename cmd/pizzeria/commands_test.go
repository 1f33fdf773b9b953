package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bissquit/pizzeria/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Subset(t, names, []string{"serve", "migrate", "seed"})
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateCmd_RejectsUnknownDirection(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "sideways"})
	root.SilenceErrors = true

	err := root.Execute()

	assert.Error(t, err)
}

func writeDatabaseOnlyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://localhost/pizzeria\n"), 0o600))
	return path
}

func TestLoadConfig_DatabaseOnlyForMaintenanceCommands(t *testing.T) {
	path := writeDatabaseOnlyConfig(t)

	cfg, err := loadConfig(path, (*config.Config).ValidateDatabase)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/pizzeria", cfg.Database.URL)
	assert.Empty(t, cfg.Mongo.URI)
	assert.Empty(t, cfg.JWT.SecretKey)
}

func TestLoadConfig_ServeNeedsEverything(t *testing.T) {
	path := writeDatabaseOnlyConfig(t)

	_, err := loadConfig(path, (*config.Config).Validate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo.uri is required")
	assert.Contains(t, err.Error(), "jwt.secret_key is required")
}

func TestSeedCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PIZZERIA_DATABASE__URL", "")
	root := newRootCmd()
	root.SetArgs([]string{"seed"})
	root.SilenceErrors = true

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
	assert.NotContains(t, err.Error(), "mongo.uri")
}
