package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	FFE      FFEConfig      `yaml:"ffe"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// RedisConfig 进度缓存使用的 Redis，Addr 为空时不启用缓存
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type FFEConfig struct {
	DefaultCurrency       string `yaml:"default_currency"`
	DefaultOrganizationID uint   `yaml:"default_organization_id"`
	SeedTemplates         bool   `yaml:"seed_templates"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/ffe.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		FFE: FFEConfig{
			DefaultCurrency:       "USD",
			DefaultOrganizationID: 1,
			SeedTemplates:         true,
		},
	}
}

func loadConfig() *Config {
	config := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	applyEnv(config)
	config.FFE.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.FFE.DefaultCurrency))
	if config.FFE.DefaultCurrency == "" {
		config.FFE.DefaultCurrency = "USD"
	}
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		config.Server.Mode = mode
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	// Redis 环境变量
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		config.Redis.DB = db
	}
	if ttl, err := time.ParseDuration(os.Getenv("PROGRESS_CACHE_TTL")); err == nil {
		config.Redis.TTL = ttl
	}

	if currency := os.Getenv("DEFAULT_CURRENCY"); currency != "" {
		config.FFE.DefaultCurrency = currency
	}
	if orgID, err := strconv.ParseUint(os.Getenv("DEFAULT_ORGANIZATION_ID"), 10, 32); err == nil {
		config.FFE.DefaultOrganizationID = uint(orgID)
	}
	if seed, err := strconv.ParseBool(os.Getenv("SEED_TEMPLATES")); err == nil {
		config.FFE.SeedTemplates = seed
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func UpdateConfig(newCfg *Config) {
	cfg = newCfg
}
