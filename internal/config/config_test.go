package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
wallet:
  kind: keystore
  keystore_dir: /tmp/ks
metadata:
  timeout: 3s
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", c.MetadataServer.Listen)
	assert.Equal(t, []string{"http://localhost:5173"}, c.MetadataServer.AllowedOrigins)
	assert.Equal(t, "http://localhost:5000/api/contracts", c.Metadata.URL)
	assert.Equal(t, 3*time.Second, c.Metadata.Timeout)
	assert.Equal(t, int64(31337), c.Chain.ChainID)
	assert.Equal(t, 20, c.Campaigns.ReadsPerSecond)
}

func TestLoadExampleFile(t *testing.T) {
	c, err := Load("config.example.yml")
	require.NoError(t, err)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", c.MetadataServer.ContractAddress)
	assert.Equal(t, 2*time.Minute, c.Chain.ConfirmationTimeout)
	assert.False(t, c.RedisCredential.Configured())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown wallet", "wallet:\n  kind: metamask\n", "unknown wallet kind"},
		{"keystore without dir", "wallet:\n  kind: keystore\n", "keystore_dir"},
		{"bad account", "wallet:\n  kind: walletconnect\n  account: nope\n", "not a hex address"},
		{"bad contract", "wallet:\n  kind: walletconnect\nmetadata_server:\n  contract_address: 0x12\n", "contract_address"},
		{"registry without postgres", "wallet:\n  kind: walletconnect\nmetadata_server:\n  registry: true\n", "requires postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
