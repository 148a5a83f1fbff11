package project

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// ValidationError represents a specific validation failure in a project config.
type ValidationError struct {
	// Field is the dotted path of the offending value (e.g., "networks.localhost.url").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("project config validation error: %s: %s", e.Field, e.Message)
}

// semverRegex accepts exact solc release versions such as "0.8.28".
// Ranges ("^0.8.0") are not accepted because artifacts are built by one
// specific compiler.
var semverRegex = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

// ValidateConfig performs consistency checks on a parsed configuration.
// It returns every problem found (empty slice = valid configuration).
//
// Checks performed:
//   - solidity.version is an exact MAJOR.MINOR.PATCH version
//   - optimizer runs is not negative
//   - at least one network; names are identifiers
//   - network URLs, when set, are absolute http(s) or ws(s) URLs
//   - chain IDs are non-zero
//   - every path role is set, relative, and distinct from the others
func ValidateConfig(cfg *model.ProjectConfig) []ValidationError {
	var errs []ValidationError

	if cfg.Solidity.Version == "" {
		errs = append(errs, ValidationError{Field: "solidity.version", Message: "compiler version is required"})
	} else if !semverRegex.MatchString(cfg.Solidity.Version) {
		errs = append(errs, ValidationError{
			Field:   "solidity.version",
			Message: fmt.Sprintf("%q is not an exact MAJOR.MINOR.PATCH version", cfg.Solidity.Version),
		})
	}
	if opt := cfg.Solidity.Optimizer; opt != nil && opt.Runs < 0 {
		errs = append(errs, ValidationError{Field: "solidity.settings.optimizer.runs", Message: "must not be negative"})
	}

	if len(cfg.Networks) == 0 {
		errs = append(errs, ValidationError{Field: "networks", Message: "at least one network is required"})
	}
	for _, name := range NetworkNames(cfg) {
		n := cfg.Networks[name]
		field := "networks." + name
		if err := model.ValidateIdentifier("network name", name); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
		if n.ChainID == 0 {
			errs = append(errs, ValidationError{Field: field + ".chainId", Message: "chain ID is required and must be non-zero"})
		}
		if n.URL != "" {
			if msg := checkURL(n.URL); msg != "" {
				errs = append(errs, ValidationError{Field: field + ".url", Message: msg})
			}
		}
	}

	seen := make(map[string]model.PathRole)
	for _, role := range model.AllPathRoles {
		p := cfg.Paths.Get(role)
		field := "paths." + role.String()
		if p == "" {
			errs = append(errs, ValidationError{Field: field, Message: "path is required"})
			continue
		}
		if filepath.IsAbs(p) {
			errs = append(errs, ValidationError{Field: field, Message: "path should be relative to the project root"})
		}
		clean := filepath.Clean(p)
		if other, dup := seen[clean]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("path %q is also used for %s", p, other),
			})
			continue
		}
		seen[clean] = role
	}

	return errs
}

func checkURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Sprintf("unsupported URL scheme %q (valid: http, https, ws, wss)", u.Scheme)
	}
	if u.Host == "" {
		return "URL must include a host"
	}
	return ""
}

// FormatValidationErrors joins validation errors into one multi-line message.
func FormatValidationErrors(errs []ValidationError) string {
	lines := make([]string, len(errs))
	for i := range errs {
		lines[i] = fmt.Sprintf("  - %s: %s", errs[i].Field, errs[i].Message)
	}
	return strings.Join(lines, "\n")
}

// LoadAndValidate loads the config at path and fails with ExitInvalidConfig
// if ValidateConfig reports any problem.
func LoadAndValidate(path string) (*model.ProjectConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if errs := ValidateConfig(cfg); len(errs) > 0 {
		return nil, model.NewCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("project config %s is invalid:\n%s", path, FormatValidationErrors(errs)),
		)
	}
	return cfg, nil
}
