// Package project handles loading, validation and rendering of the
// votedeploy project configuration file.
//
// The configuration record selects a compiler version, defines the named
// networks (RPC endpoint and chain ID) and maps directory roles (sources,
// artifacts, cache, tests) to paths. It is read once per command and never
// modified by the CLI, except by `config init`, which writes the defaults.
//
// JSONC (JSON with Comments) is supported via github.com/tidwall/jsonc and
// YAML via gopkg.in/yaml.v3. Both decoders run in strict mode, so a file with
// an unknown key fails to load instead of being silently accepted.
package project
