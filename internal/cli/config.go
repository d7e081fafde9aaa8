package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds CLI defaults loaded from file and environment. Flags
// override these at parse time.
type Config struct {
	Format  string
	Verbose bool
	Journal JournalConfig
}

// JournalConfig holds defaults for the journal-backed commands.
type JournalConfig struct {
	Path  string
	Store string
}

// LoadConfig reads statecell.toml and STATECELL_* environment overrides.
// A missing config file is not an error; every key has a usable default.
// STATECELL_CONFIG points at an explicit file, otherwise the working
// directory and $XDG_CONFIG_HOME/statecell are searched.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.store", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("STATECELL_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(configHome(), "statecell"))
		v.SetConfigName("statecell")
	}

	v.SetEnvPrefix("STATECELL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// a missing config file is fine, a malformed one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}
