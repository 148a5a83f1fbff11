package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

const (
	// DefaultSolidityVersion is the compiler version the bundled contracts target.
	DefaultSolidityVersion = "0.8.28"

	// DevChainID is the chain ID shared by the in-process chain and the
	// local development node.
	DevChainID uint64 = 31337

	// LocalhostURL is the JSON-RPC endpoint of a local development node.
	LocalhostURL = "http://127.0.0.1:8545"

	// InProcessNetwork is the name of the network simulated inside the CLI.
	InProcessNetwork = "hardhat"

	// LocalhostNetwork is the name of the network served by a local node.
	LocalhostNetwork = "localhost"
)

// ConfigFileNames lists the file names FindConfig looks for, in priority order.
var ConfigFileNames = []string{
	"votedeploy.config.json",
	"votedeploy.config.jsonc",
	"votedeploy.config.yaml",
	"votedeploy.config.yml",
}

// DefaultConfig returns the canonical project configuration: one compiler
// version, an in-process network and a localhost network sharing chain ID
// 31337, and the four standard directory roles.
func DefaultConfig() *model.ProjectConfig {
	return &model.ProjectConfig{
		Solidity: model.SolidityConfig{Version: DefaultSolidityVersion},
		Networks: map[string]model.Network{
			InProcessNetwork: {ChainID: DevChainID},
			LocalhostNetwork: {URL: LocalhostURL, ChainID: DevChainID},
		},
		Paths: model.Paths{
			Artifacts: "./artifacts",
			Sources:   "./contracts",
			Cache:     "./cache",
			Tests:     "./test",
		},
	}
}

// rawConfig is the on-disk shape of the configuration file. Solidity is
// left untyped because the file may hold either a version string or an
// object with settings.
type rawConfig struct {
	Solidity any                   `json:"solidity" yaml:"solidity"`
	Networks map[string]rawNetwork `json:"networks" yaml:"networks"`
	Paths    *model.Paths          `json:"paths" yaml:"paths"`
}

type rawNetwork struct {
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	ChainID uint64 `json:"chainId" yaml:"chainId"`
}

// LoadConfig reads a project configuration file and parses it into a
// ProjectConfig. The format is chosen by extension: .yaml/.yml are parsed
// as YAML, everything else as JSONC.
//
// Unknown keys and missing top-level sections are rejected. Returns a
// CLIError with ExitConfigNotFound if the file does not exist and
// ExitInvalidConfig if it cannot be parsed.
func LoadConfig(path string) (*model.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigNotFound,
				fmt.Sprintf("project config not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	cfg, err := ParseConfig(data, formatForPath(path))
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("failed to parse project config at %s", path),
			err,
		)
	}
	return cfg, nil
}

// Format is the serialization format of a config file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseConfig decodes configuration bytes in the given format.
func ParseConfig(data []byte, format Format) (*model.ProjectConfig, error) {
	var raw rawConfig
	var present map[string]bool

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("config file is empty")
			}
			return nil, err
		}
		var keys map[string]yaml.Node
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return nil, err
		}
		present = make(map[string]bool, len(keys))
		for k := range keys {
			present[k] = true
		}
	default:
		// Strip JSONC comments and trailing commas before strict decoding.
		clean := jsonc.ToJSON(data)
		dec := json.NewDecoder(bytes.NewReader(clean))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("config file is empty")
			}
			return nil, err
		}
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(clean, &keys); err != nil {
			return nil, err
		}
		present = make(map[string]bool, len(keys))
		for k := range keys {
			present[k] = true
		}
	}

	var missing []string
	for _, key := range []string{"solidity", "networks", "paths"} {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}

	solidity, err := parseSolidity(raw.Solidity)
	if err != nil {
		return nil, err
	}

	cfg := &model.ProjectConfig{
		Solidity: solidity,
		Networks: make(map[string]model.Network, len(raw.Networks)),
	}
	for name, n := range raw.Networks {
		cfg.Networks[name] = model.Network{URL: n.URL, ChainID: n.ChainID}
	}
	if raw.Paths != nil {
		cfg.Paths = *raw.Paths
	}
	return cfg, nil
}

// parseSolidity normalizes the two accepted forms of the solidity field:
//
//	"solidity": "0.8.28"
//	"solidity": {"version": "0.8.28", "settings": {"optimizer": {"enabled": true, "runs": 200}}}
func parseSolidity(v any) (model.SolidityConfig, error) {
	switch s := v.(type) {
	case string:
		return model.SolidityConfig{Version: s}, nil
	case map[string]any:
		var out model.SolidityConfig
		if err := checkKeys("solidity", s, "version", "settings"); err != nil {
			return out, err
		}
		version, ok := s["version"].(string)
		if !ok {
			return out, errors.New("solidity.version must be a string")
		}
		out.Version = version

		if settings, ok := s["settings"]; ok {
			sm, ok := settings.(map[string]any)
			if !ok {
				return out, errors.New("solidity.settings must be an object")
			}
			if err := checkKeys("solidity.settings", sm, "optimizer"); err != nil {
				return out, err
			}
			if opt, ok := sm["optimizer"]; ok {
				om, ok := opt.(map[string]any)
				if !ok {
					return out, errors.New("solidity.settings.optimizer must be an object")
				}
				if err := checkKeys("solidity.settings.optimizer", om, "enabled", "runs"); err != nil {
					return out, err
				}
				enabled := false
				if raw, ok := om["enabled"]; ok {
					if enabled, ok = raw.(bool); !ok {
						return out, fmt.Errorf("solidity.settings.optimizer.enabled must be a boolean, got %T", raw)
					}
				}
				runs, err := toInt(om["runs"])
				if err != nil {
					return out, fmt.Errorf("solidity.settings.optimizer.runs: %w", err)
				}
				out.Optimizer = &model.OptimizerSettings{Enabled: enabled, Runs: runs}
			}
		}
		return out, nil
	case nil:
		return model.SolidityConfig{}, errors.New("solidity must not be null")
	default:
		return model.SolidityConfig{}, fmt.Errorf("solidity must be a version string or an object, got %T", v)
	}
}

// checkKeys rejects any key of m not in allowed. Keys are reported in
// sorted order so the message is stable.
func checkKeys(field string, m map[string]any, allowed ...string) error {
	var unknown []string
	for key := range m {
		if !slices.Contains(allowed, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%s: unknown key(s) %s", field, strings.Join(unknown, ", "))
}

// toInt accepts the number types produced by encoding/json (float64) and
// yaml.v3 (int) when decoding into interface{}.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// RenderConfig serializes a configuration in the given format. The
// solidity field is written in its short string form when no optimizer
// settings are present, so DefaultConfig renders exactly as a hand-written
// file would.
func RenderConfig(cfg *model.ProjectConfig, format Format) ([]byte, error) {
	var solidity any = cfg.Solidity.Version
	if cfg.Solidity.Optimizer != nil {
		solidity = map[string]any{
			"version": cfg.Solidity.Version,
			"settings": map[string]any{
				"optimizer": map[string]any{
					"enabled": cfg.Solidity.Optimizer.Enabled,
					"runs":    cfg.Solidity.Optimizer.Runs,
				},
			},
		}
	}

	networks := make(map[string]rawNetwork, len(cfg.Networks))
	for name, n := range cfg.Networks {
		networks[name] = rawNetwork{URL: n.URL, ChainID: n.ChainID}
	}
	paths := cfg.Paths
	out := rawConfig{Solidity: solidity, Networks: networks, Paths: &paths}

	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(&out)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize project config: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(&out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to serialize project config: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// WriteConfig renders cfg and writes it to path, creating parent
// directories as needed. The format follows the file extension.
func WriteConfig(path string, cfg *model.ProjectConfig) error {
	data, err := RenderConfig(cfg, formatForPath(path))
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project config to %s: %w", path, err)
	}
	return nil
}

// FindConfig searches dir for a configuration file, trying the names in
// ConfigFileNames in order.
//
// Returns the path to the first match, or a CLIError with
// ExitConfigNotFound if none exists.
func FindConfig(dir string) (string, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitConfigNotFound,
		fmt.Sprintf("project config not found in %s (searched %s)", dir, strings.Join(ConfigFileNames, ", ")),
	)
}

// NetworkNames returns the configured network names, sorted.
func NetworkNames(cfg *model.ProjectConfig) []string {
	names := make([]string, 0, len(cfg.Networks))
	for name := range cfg.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveNetwork looks up a network by name. The error lists the known
// names so a typo on the command line is easy to correct.
func ResolveNetwork(cfg *model.ProjectConfig, name string) (model.Network, error) {
	n, ok := cfg.Networks[name]
	if !ok {
		return model.Network{}, model.NewCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("unknown network %q (configured: %s)", name, strings.Join(NetworkNames(cfg), ", ")),
		)
	}
	return n, nil
}

// ResolvePath joins the path configured for role onto the project root.
func ResolvePath(cfg *model.ProjectConfig, root string, role model.PathRole) string {
	return filepath.Join(root, cfg.Paths.Get(role))
}
