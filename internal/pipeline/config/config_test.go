package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T) *ConfigParam {
	t.Helper()
	return &ConfigParam{
		FormatVersion: ConfigFormatVersion,
		DryRun:        true,
		WorkDir:       t.TempDir(),
		Store:         StoreConfig{Driver: "memory"},
		Batch: BatchConfig{
			DailyLimit: 10,
			MinImages:  1,
			MaxImages:  3,
		},
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := baseConfig(t)
	require.NoError(t, ValidateConfig(c))

	assert.Equal(t, 3, c.Batch.AttemptsPerImage)
	assert.Equal(t, "30s", c.Batch.DelayMin)
	assert.Equal(t, "start", c.Approval.StartCommand)
	assert.Equal(t, 100, c.Metadata.MaxTitleLen)
	assert.Equal(t, "gpt-4o-mini", c.Metadata.Model)
}

func TestValidateRejectsBadVersion(t *testing.T) {
	c := baseConfig(t)
	c.FormatVersion = "9.9.9"
	assert.Error(t, ValidateConfig(c))
}

func TestValidateRejectsInvertedBatchBounds(t *testing.T) {
	c := baseConfig(t)
	c.Batch.MinImages = 5
	c.Batch.MaxImages = 2
	assert.Error(t, ValidateConfig(c))
}

func TestValidateRejectsBadDuration(t *testing.T) {
	c := baseConfig(t)
	c.Batch.DelayMin = "soon"
	assert.Error(t, ValidateConfig(c))
}

func TestPublishCommandRequiredOutsideDryRun(t *testing.T) {
	c := baseConfig(t)
	c.DryRun = false
	assert.Error(t, ValidateConfig(c))

	c.Publish.Command = []string{"/usr/local/bin/uploader"}
	assert.NoError(t, ValidateConfig(c))
}

func TestApprovalRequiresTokens(t *testing.T) {
	c := baseConfig(t)
	c.DryRun = false
	c.Publish.Command = []string{"/usr/local/bin/uploader"}
	c.Approval.Enabled = true
	c.Approval.Channel = "C123"
	c.Approval.BotTokenEnv = "TEST_MISSING_BOT_TOKEN"
	c.Approval.AppTokenEnv = "TEST_MISSING_APP_TOKEN"
	assert.Error(t, ValidateConfig(c))

	t.Setenv("TEST_MISSING_BOT_TOKEN", "xoxb-test")
	t.Setenv("TEST_MISSING_APP_TOKEN", "xapp-test")
	assert.NoError(t, ValidateConfig(c))
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixelpost.toml")
	content := `
format_version = "0.1.0"
dry_run = true
work_dir = "` + dir + `"

[store]
driver = "memory"

[batch]
daily_limit = 5
min_images = 1
max_images = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, LoadConfig(path))

	assert.Equal(t, 5, Config().Batch.DailyLimit)
	assert.True(t, Config().DryRun)
}
