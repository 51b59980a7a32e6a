package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/reagent/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("RESEARCH_MCP_URL", "http://127.0.0.1:8000/mcp")

	dir := t.TempDir()
	file := filepath.Join(dir, "registry.yaml")
	err := os.WriteFile(file, []byte(`
servers:
  research:
    url: ${RESEARCH_MCP_URL}
    call_timeout: 15
    headers:
      Authorization: Bearer test
`), 0644)
	require.NoError(t, err)

	cfg, err := registry.LoadConfig(file)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)

	sc := cfg.Servers["research"]
	require.NotNil(t, sc)
	assert.Equal(t, "http://127.0.0.1:8000/mcp", sc.URL)
	assert.Equal(t, 15, sc.CallTimeout)
	assert.Equal(t, "Bearer test", sc.Headers["Authorization"])
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := registry.LoadConfig("testdata/missing.yaml")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name   string
		cfg    registry.Config
		expErr bool
	}{
		{
			name: "valid",
			cfg: registry.Config{Servers: map[string]*registry.ServerConfig{
				"a": {URL: "http://127.0.0.1:8000/mcp"},
			}},
		},
		{
			name:   "no servers",
			cfg:    registry.Config{},
			expErr: true,
		},
		{
			name: "missing url",
			cfg: registry.Config{Servers: map[string]*registry.ServerConfig{
				"a": {},
			}},
			expErr: true,
		},
		{
			name: "unsupported transport",
			cfg: registry.Config{Servers: map[string]*registry.ServerConfig{
				"a": {URL: "http://127.0.0.1:8000/mcp", Transport: "stdio"},
			}},
			expErr: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
