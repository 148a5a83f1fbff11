// Package settings loads runtime settings that do not belong in the
// project config file: the target network, the deployer key, timeouts and
// logging. Values come from, in increasing priority, defaults, a .env file
// next to the project config (see EnvFileFor), VOTEDEPLOY_* environment
// variables, and command-line flags bound by the caller.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shinji-kodama/votedeploy/internal/chain"
	"github.com/shinji-kodama/votedeploy/internal/project"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VOTEDEPLOY"

// Keys understood by Load. Each maps to VOTEDEPLOY_<KEY>.
const (
	KeyNetwork        = "network"
	KeyPrivateKey     = "private_key"
	KeyConfig         = "config"
	KeyReceiptTimeout = "receipt_timeout"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
)

// Settings are the resolved runtime settings.
type Settings struct {
	Network        string
	PrivateKey     string
	ConfigPath     string
	ReceiptTimeout time.Duration
	LogLevel       string
	LogFormat      string
}

// Options control where Load looks.
type Options struct {
	// EnvFile is the dotenv file to read. A missing file is ignored.
	EnvFile string

	// Flags maps setting keys to command-line flags. A flag the user set
	// overrides the environment; otherwise its default replaces the
	// built-in one.
	Flags map[string]*pflag.Flag
}

// EnvFileFor returns the .env file belonging to the project whose config
// file is configPath. An empty configPath means the project is searched for
// in the working directory, so its .env is read from there too.
func EnvFileFor(configPath string) string {
	if configPath == "" {
		return ".env"
	}
	return filepath.Join(filepath.Dir(configPath), ".env")
}

// Load resolves the settings.
func Load(opts Options) (*Settings, error) {
	if opts.EnvFile != "" {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyNetwork, project.InProcessNetwork)
	v.SetDefault(KeyPrivateKey, "")
	v.SetDefault(KeyConfig, "")
	v.SetDefault(KeyReceiptTimeout, chain.DefaultReceiptTimeout.String())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
		// A command's own flag default beats the global default.
		if flag.DefValue != "" {
			v.SetDefault(key, flag.DefValue)
		}
	}

	timeout, err := time.ParseDuration(v.GetString(KeyReceiptTimeout))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid %s_%s %q: want a positive duration such as 90s",
			EnvPrefix, strings.ToUpper(KeyReceiptTimeout), v.GetString(KeyReceiptTimeout))
	}

	s := &Settings{
		Network:        v.GetString(KeyNetwork),
		PrivateKey:     v.GetString(KeyPrivateKey),
		ConfigPath:     v.GetString(KeyConfig),
		ReceiptTimeout: timeout,
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
	}
	return s, nil
}

// ConfigureLogger applies the log level and format to logger. Verbose
// forces debug level. Logs go to stderr so that stdout stays parseable.
func (s *Settings) ConfigureLogger(logger *logrus.Logger, verbose bool) {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	if s.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
