package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// fields collects the Field of every validation error for compact assertions.
func fields(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i := range errs {
		out[i] = errs[i].Field
	}
	return out
}

func TestValidateConfig_Defaults(t *testing.T) {
	assert.Empty(t, ValidateConfig(DefaultConfig()))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *model.ProjectConfig)
		want   []string
	}{
		{
			name:   "missing version",
			mutate: func(cfg *model.ProjectConfig) { cfg.Solidity.Version = "" },
			want:   []string{"solidity.version"},
		},
		{
			name:   "version range",
			mutate: func(cfg *model.ProjectConfig) { cfg.Solidity.Version = "^0.8.0" },
			want:   []string{"solidity.version"},
		},
		{
			name: "negative runs",
			mutate: func(cfg *model.ProjectConfig) {
				cfg.Solidity.Optimizer = &model.OptimizerSettings{Runs: -1}
			},
			want: []string{"solidity.settings.optimizer.runs"},
		},
		{
			name:   "no networks",
			mutate: func(cfg *model.ProjectConfig) { cfg.Networks = nil },
			want:   []string{"networks"},
		},
		{
			name: "zero chain id",
			mutate: func(cfg *model.ProjectConfig) {
				cfg.Networks["localhost"] = model.Network{URL: LocalhostURL}
			},
			want: []string{"networks.localhost.chainId"},
		},
		{
			name: "bad url scheme",
			mutate: func(cfg *model.ProjectConfig) {
				cfg.Networks["localhost"] = model.Network{URL: "ftp://127.0.0.1:8545", ChainID: 31337}
			},
			want: []string{"networks.localhost.url"},
		},
		{
			name: "url without host",
			mutate: func(cfg *model.ProjectConfig) {
				cfg.Networks["localhost"] = model.Network{URL: "http://", ChainID: 31337}
			},
			want: []string{"networks.localhost.url"},
		},
		{
			name: "bad network name",
			mutate: func(cfg *model.ProjectConfig) {
				cfg.Networks["my net"] = model.Network{ChainID: 5}
			},
			want: []string{"networks.my net"},
		},
		{
			name:   "missing path",
			mutate: func(cfg *model.ProjectConfig) { cfg.Paths.Cache = "" },
			want:   []string{"paths.cache"},
		},
		{
			name:   "absolute path",
			mutate: func(cfg *model.ProjectConfig) { cfg.Paths.Tests = "/tmp/test" },
			want:   []string{"paths.tests"},
		},
		{
			name:   "shared path",
			mutate: func(cfg *model.ProjectConfig) { cfg.Paths.Cache = "artifacts" },
			want:   []string{"paths.cache"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Equal(t, tt.want, fields(ValidateConfig(cfg)))
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "votedeploy.config.json", `{
  "solidity": "latest",
  "networks": {"localhost": {"url": "http://127.0.0.1:8545", "chainId": 31337}},
  "paths": {"artifacts": "a", "sources": "s", "cache": "c", "tests": "t"}
}`)

	_, err := LoadAndValidate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solidity.version")
}
