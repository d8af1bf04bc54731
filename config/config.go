package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quantumVector/app-mtla-me/models"
)

// Config is the application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	LevelDB     LevelDBConfig     `mapstructure:"leveldb"`
	Horizon     HorizonConfig     `mapstructure:"horizon"`
	Governance  GovernanceConfig  `mapstructure:"governance"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	DomainMeta  DomainMetaConfig  `mapstructure:"domain_meta"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

type HorizonConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GovernanceConfig describes the governance account and its tokens.
type GovernanceConfig struct {
	MainAccount    string       `mapstructure:"main_account"`
	MemberToken    models.Asset `mapstructure:"member_token"`
	CorporateToken models.Asset `mapstructure:"corporate_token"`
	Exclude        []string     `mapstructure:"exclude"`
	DepthBudget    int          `mapstructure:"depth_budget"`
	CouncilSize    int          `mapstructure:"council_size"`

	CheckpointRetention int `mapstructure:"checkpoint_retention"`
}

type CacheConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	AccountSize int           `mapstructure:"account_size"`
}

type TransactionConfig struct {
	BaseFee int64  `mapstructure:"base_fee"`
	Memo    string `mapstructure:"memo"`
}

// DomainMetaConfig points at the home domain metadata service used to
// enrich corporate members. Disabled leaves corporate members unenriched.
type DomainMetaConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads the config file at path. Environment variables prefixed with
// MTLA_ override file values, e.g. MTLA_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("mtla")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/snapshots")
	v.SetDefault("horizon.url", "https://horizon.stellar.org")
	v.SetDefault("horizon.timeout", 30*time.Second)
	v.SetDefault("governance.depth_budget", 10)
	v.SetDefault("governance.council_size", 20)
	v.SetDefault("governance.checkpoint_retention", 100)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.account_size", 10000)
	v.SetDefault("transaction.base_fee", 100000)
	v.SetDefault("transaction.memo", "Update sign weights")
	v.SetDefault("domain_meta.enabled", true)
	v.SetDefault("domain_meta.url", "https://api.stellar.expert/explorer/public/domain-meta")
	v.SetDefault("domain_meta.timeout", 10*time.Second)
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Governance.MainAccount == "":
		return fmt.Errorf("governance.main_account is required")
	case c.Governance.MemberToken.Code == "" || c.Governance.MemberToken.Issuer == "":
		return fmt.Errorf("governance.member_token code and issuer are required")
	case c.Governance.DepthBudget < 0:
		return fmt.Errorf("governance.depth_budget must not be negative")
	case c.Governance.CouncilSize <= 0:
		return fmt.Errorf("governance.council_size must be positive")
	case c.Cache.AccountSize <= 0:
		return fmt.Errorf("cache.account_size must be positive")
	case c.Governance.CheckpointRetention <= 0:
		return fmt.Errorf("governance.checkpoint_retention must be positive")
	}
	return nil
}
