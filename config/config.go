package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rlaneuville/roomchat/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultServiceName        = "chat"
	defaultMaxUsers           = 20
	defaultMaxMessagesPerFile = 100
	defaultCheckpointSpec     = "@every 5m"
	defaultPageCacheSize      = 32
)

// Config is the global configuration object, filled from a TOML file (or a
// directory of TOML files), environment variables and command-line flags.
type Config struct {
	ChatConfig        ChatConfig        `mapstructure:"chat"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	LogLevel          string            `mapstructure:"log_level"`
}

// ChatConfig configures the chat service itself.
type ChatConfig struct {
	ServiceName        string `mapstructure:"service_name"`
	DefaultMaxUsers    int    `mapstructure:"default_max_users"`     // capacity of the "default" room
	MaxMessagesPerFile int    `mapstructure:"max_messages_per_file"` // history page size
	CheckpointSpec     string `mapstructure:"checkpoint_spec"`       // cron spec for periodic snapshots
}

// HistoryConfig configures the in-memory side of the history store.
type HistoryConfig struct {
	PageCacheSize int `mapstructure:"page_cache_size"`
}

// PersistenceConfig selects the persistence backend. Type is one of
// "buntdb", "file", "sqlite" or "postgres". DSN is the buntdb file name, the
// data directory for the file backend, or the database DSN for sqlite/postgres.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// AuthConfig configures the file-backed identity directory. If UsersFile is
// empty and at least one OIDC provider is configured, OIDC is used instead.
type AuthConfig struct {
	UsersFile string `mapstructure:"users_file"`
}

// An OIDCConfig block configures an OpenID Connect provider usable as an
// identity backend: clients pass the provider name as login and an ID token
// as secret.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object with defaults applied.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("chat.service_name", defaultServiceName)
	viper.SetDefault("chat.default_max_users", defaultMaxUsers)
	viper.SetDefault("chat.max_messages_per_file", defaultMaxMessagesPerFile)
	viper.SetDefault("chat.checkpoint_spec", defaultCheckpointSpec)
	viper.SetDefault("history.page_cache_size", defaultPageCacheSize)
	viper.SetDefault("persistence.type", "buntdb")
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("ROOMCHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
