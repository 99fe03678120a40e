// Package config provides a reusable loader for a tangledag node's
// configuration files and environment variables, mirroring the teacher's
// pkg/config loader: viper for file/env merging, godotenv for local .env
// overrides.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/perseus101/tangledag/pkg/util"
)

// Config is the unified configuration for a tangledag node.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Milestone struct {
		NonceMin uint32 `mapstructure:"nonce_min" json:"nonce_min"`
		NonceMax uint32 `mapstructure:"nonce_max" json:"nonce_max"`
	} `mapstructure:"milestone" json:"milestone"`

	Storage struct {
		TrieRemote        string `mapstructure:"trie_remote" json:"trie_remote"`
		TransactionRemote string `mapstructure:"transaction_remote" json:"transaction_remote"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads default.yaml (and, if env is non-empty, an env-specific
// overlay) from cmd/config, then merges environment variables and any
// local .env file on top.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("network.listen_addr", util.EnvOrDefault("TANGLED_LISTEN_ADDR", ":7700"))
	viper.SetDefault("milestone.nonce_min", 100_000)
	viper.SetDefault("milestone.nonce_max", 200_000)
	viper.SetDefault("logging.level", util.EnvOrDefault("TANGLED_LOG_LEVEL", "info"))

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, util.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, util.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, util.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TANGLED_ENV environment
// variable to select an overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(util.EnvOrDefault("TANGLED_ENV", ""))
}

// YAML renders the effective configuration back to YAML, so an operator can
// confirm what was actually loaded (file + env overlay + environment
// variables merged) without reading viper's internal state.
func (c *Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, util.Wrap(err, "marshal effective config")
	}
	return b, nil
}
