package middleware

import (
	"database/sql"
	"fmt"
	"multihop/common"
	"multihop/structs"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

// ConnectToDB opens the MySQL connection pool holding probes, measurements and results
func ConnectToDB(dbConfig structs.DatabaseConfig) (*sql.DB, error) {
	// DSN: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8&parseTime=True&loc=UTC",
		dbConfig.Username,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.DBName,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbConfig.DBName, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s at %s: %w", dbConfig.DBName, dbConfig.Host, err)
	}

	log.Infof("Database connection pool initialized successfully, host: %s, db: %s", dbConfig.Host, dbConfig.DBName)
	return db, nil
}

// NewRedisPool returns a redigo pool for the sample store
func NewRedisPool(cfg structs.RedisConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Address)
		},
	}
}

// LoadConfig reads the TOML configuration file and fills in defaults
func LoadConfig(path string) (*structs.Config, error) {
	var cfg structs.Config
	// Get absolute path for clearer error messages if file not found
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path for %s: %w", path, err)
	}

	log.Infof("Attempting to load configuration from: %s", absPath)

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("error decoding TOML file %s: %w", path, err)
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", absPath, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills empty values and validates the rest
func ApplyDefaults(cfg *structs.Config) error {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "127.0.0.1:3306"
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "127.0.0.1:6379"
	}
	if cfg.Redis.MaxIdle <= 0 {
		cfg.Redis.MaxIdle = 3
	}
	if len(cfg.Etcd.Endpoints) == 0 {
		cfg.Etcd.Endpoints = []string{"localhost:2379"}
	}
	if cfg.Etcd.DialTimeoutSeconds <= 0 {
		cfg.Etcd.DialTimeoutSeconds = 5
	}

	switch cfg.Search.Source {
	case "":
		log.Warningf("search source not specified, using %s", structs.SourceMySQL)
		cfg.Search.Source = structs.SourceMySQL
	case structs.SourceMySQL, structs.SourceRedis, structs.SourceFile:
	default:
		return fmt.Errorf("unknown search source %q", cfg.Search.Source)
	}

	if len(cfg.Search.HopCounts) == 0 {
		cfg.Search.HopCounts = append([]common.HopCount(nil), common.AllHopCounts...)
	}
	for _, h := range cfg.Search.HopCounts {
		if !common.ValidHopCount(h) {
			return fmt.Errorf("hop count %d out of range [%d, %d]", h, common.MinHopCount, common.MaxHopCount)
		}
	}
	if cfg.Search.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Search.Workers)
	}
	if cfg.Search.DataDir == "" {
		cfg.Search.DataDir = "./data"
	}
	if cfg.Export.OutputDir == "" {
		cfg.Export.OutputDir = "."
	}
	return nil
}
