package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pledgeflow", cmd.Use)
	assert.Contains(t, cmd.Long, "delegated")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"admin", "add"},
		{"admin", "update"},
		{"admin", "show"},
		{"admin", "list"},
		{"admin", "cancel"},
		{"donate"},
		{"transfer"},
		{"withdraw"},
		{"payment", "list"},
		{"payment", "confirm"},
		{"payment", "cancel"},
		{"pledge", "show"},
		{"pledge", "list"},
		{"pledge", "delegate"},
		{"pledge", "history"},
		{"pledge", "normalize"},
		{"pledge", "cancel"},
		{"events"},
		{"verify"},
		{"status"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestMutatingCommandsTakeCaller(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"admin", "add"},
		{"admin", "update"},
		{"admin", "cancel"},
		{"donate"},
		{"transfer"},
		{"withdraw"},
		{"pledge", "cancel"},
	} {
		subCmd, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.NotNil(t, subCmd.Flags().Lookup("as"), "%v should take --as", path)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfigDatabaseOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(&RootOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pledgeflow.db", cfg.DatabasePath)

	cfg, err = loadConfig(&RootOptions{Database: "/tmp/other.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(&RootOptions{ConfigFile: "/nonexistent/pledgeflow.yaml"})
	require.Error(t, err)
}
