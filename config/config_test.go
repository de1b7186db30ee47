package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalTOML = `
chain_id = "test-chain"
listen_address = "127.0.0.1:1337"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, minimalTOML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "test-chain", cfg.ChainID)
	require.Equal(t, 65536, cfg.QueueCapacity)
	require.Greater(t, cfg.Chain.CommitTime, cfg.Chain.BlockTime)
}

func TestLoadRejectsMissingChainID(t *testing.T) {
	path := writeTemp(t, `listen_address = "127.0.0.1:1337"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsGenesisSubmitterWithoutPath(t *testing.T) {
	path := writeTemp(t, minimalTOML+"\ngenesis_submitter = true\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadCommitTime(t *testing.T) {
	cfg := &Config{
		ChainID:              "x",
		QueueCapacity:        10,
		QueueCapacityPerUser: 5,
	}
	cfg.Chain.BlockTime = 2_000_000_000
	cfg.Chain.CommitTime = 1_000_000_000
	require.Error(t, cfg.Validate())
}

func TestApplyHotOnlyTouchesHotFields(t *testing.T) {
	cfg := &Config{ChainID: "x", QueueCapacity: 1, QueueCapacityPerUser: 1}
	cfg.ApplyHot(Hot{LogLevel: "debug", GossipBatchSize: 128})
	require.Equal(t, "debug", cfg.Hot.LogLevel)
	require.Equal(t, 128, cfg.Hot.GossipBatchSize)
	require.Equal(t, "x", cfg.ChainID, "ApplyHot must not touch non-hot fields")
}
