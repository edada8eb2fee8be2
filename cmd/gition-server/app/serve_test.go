package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRequiresGitHubConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  root: "+dir+"\n"), 0o600))

	viper.Set("config", cfgPath)
	t.Cleanup(func() { viper.Set("config", "") })

	err := runServe(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github configuration is required")
}
