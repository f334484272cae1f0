package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "FILES_MANAGER"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Storage     StorageConfig             `mapstructure:"storage"`
}

type BasicConfig struct {
	ServerAddress string `mapstructure:"server_address"`
	DBType        string `mapstructure:"db_type"`
	// SessionTTLHours is the lifetime of a token issued by /connect.
	SessionTTLHours int `mapstructure:"session_ttl_hours"`
	BcryptCost      int `mapstructure:"bcrypt_cost"`
	// EmbeddedWorkers runs the thumbnail workers inside the API process.
	EmbeddedWorkers   bool `mapstructure:"embedded_workers"`
	MinWorkers        int  `mapstructure:"min_workers"`
	MaxWorkers        int  `mapstructure:"max_workers"`
	QueueSize         int  `mapstructure:"queue_size"`
	WorkerIdleTimeout int  `mapstructure:"worker_idle_timeout"` // seconds
	ProducerBuffer    int  `mapstructure:"producer_buffer"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects where blobs live: "fs" (FolderPath) or "s3".
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	FolderPath  string `mapstructure:"folder_path"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Prefix    string `mapstructure:"s3_prefix"`
}

// Load reads .env (if present) and the JSON config at path (defaults to
// config.json, optional unless path is given explicitly), then applies
// environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	fileFound := false
	if _, statErr := os.Stat(absPath); statErr == nil {
		v.SetConfigFile(absPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		fileFound = true
	} else if explicit {
		return nil, fmt.Errorf("open config %s: %w", absPath, statErr)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]DatabaseConfig)
	}
	applyLegacyEnv(v, &cfg)

	dbType := strings.ToLower(cfg.BasicConfig.DBType)
	if dbType == "sqlite" || dbType == "sqlite3" {
		dbCfg := cfg.Databases[dbType]
		if dbCfg.DSN == "" {
			return nil, errors.New("sqlite dsn must be configured")
		}
		if fileFound && !strings.Contains(dbCfg.DSN, ":memory:") && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[dbType] = dbCfg
		}
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.S3Bucket == "" {
		return nil, errors.New("storage.s3_bucket must be configured for the s3 backend")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":5000")
	v.SetDefault("basic_config.db_type", "sqlite3")
	v.SetDefault("basic_config.session_ttl_hours", 24)
	v.SetDefault("basic_config.bcrypt_cost", 10)
	v.SetDefault("basic_config.embedded_workers", true)
	v.SetDefault("basic_config.min_workers", 1)
	v.SetDefault("basic_config.max_workers", 4)
	v.SetDefault("basic_config.queue_size", 64)
	v.SetDefault("basic_config.worker_idle_timeout", 30)
	v.SetDefault("basic_config.producer_buffer", 128)
	v.SetDefault("databases.sqlite3.dsn", "files_manager.db")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.folder_path", "/tmp/files_manager")
	v.SetDefault("storage.s3_region", "us-east-1")
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("storage.folder_path", envPrefix+"_STORAGE_FOLDER_PATH", "FOLDER_PATH")
	_ = v.BindEnv("redis.host", envPrefix+"_REDIS_HOST", "REDIS_HOST")
	_ = v.BindEnv("redis.port", envPrefix+"_REDIS_PORT", "REDIS_PORT")
	_ = v.BindEnv("legacy.port", "PORT")
	_ = v.BindEnv("legacy.db_host", "DB_HOST")
	_ = v.BindEnv("legacy.db_port", "DB_PORT")
	_ = v.BindEnv("legacy.db_database", "DB_DATABASE")
}

func applyLegacyEnv(v *viper.Viper, cfg *Config) {
	if port := v.GetString("legacy.port"); port != "" {
		cfg.BasicConfig.ServerAddress = ":" + port
	}
	dbType := strings.ToLower(cfg.BasicConfig.DBType)
	if dbType == "sqlite" || dbType == "sqlite3" {
		return
	}
	dbCfg := cfg.Databases[dbType]
	if host := v.GetString("legacy.db_host"); host != "" {
		dbCfg.Host = host
	}
	if port := v.GetInt("legacy.db_port"); port != 0 {
		dbCfg.Port = port
	}
	if name := v.GetString("legacy.db_database"); name != "" {
		dbCfg.DBName = name
	}
	cfg.Databases[dbType] = dbCfg
}
