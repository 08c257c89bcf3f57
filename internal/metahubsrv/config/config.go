package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type DBParam struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
}

type ConfigParam struct {
	ServerPort          string  `toml:"server_port"`
	HandleCORS          bool    `toml:"handle_cors"`
	BranchCacheTTLSecs  int     `toml:"branch_cache_ttl_secs"`
	DefaultTenantName   string  `toml:"default_tenant_name"`
	SingleTenantMode    bool    `toml:"single_tenant_mode"`
	MetahubDB           DBParam `toml:"metahub_db"`
	DefaultLayoutLocale string  `toml:"default_layout_locale"`
}

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

// BranchCacheTTL returns the TTL for the per-user active-branch cache.
func BranchCacheTTL() time.Duration {
	if cfg == nil || cfg.BranchCacheTTLSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.BranchCacheTTLSecs) * time.Second
}

func LoadConfig(filename string) error {
	if filename == "" {
		cfg = &ConfigParam{
			ServerPort:          "8196",
			HandleCORS:          true,
			BranchCacheTTLSecs:  30,
			DefaultLayoutLocale: "en",
			MetahubDB: DBParam{
				Host:    "localhost",
				Port:    5432,
				DBName:  "metahub",
				User:    "metahub_api",
				SSLMode: "disable",
			},
		}
		return nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	var cp ConfigParam
	if _, err := toml.Decode(string(content), &cp); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}
	if cp.BranchCacheTTLSecs == 0 {
		cp.BranchCacheTTLSecs = 30
	}
	if cp.DefaultLayoutLocale == "" {
		cp.DefaultLayoutLocale = "en"
	}
	cfg = &cp
	return nil
}

func init() {
	err := LoadConfig("")
	if err != nil {
		panic(err)
	}
}
