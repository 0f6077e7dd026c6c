package structs

import (
	"multihop/common"
	"time"
)

// Config holds the overall configuration structure mapping to multihop_config.toml
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Etcd     EtcdConfig     `toml:"etcd"`
	Search   SearchConfig   `toml:"search"`
	Export   ExportConfig   `toml:"export"`
}

// DatabaseConfig holds database connection parameters
type DatabaseConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Host     string `toml:"host"` // host:port
	DBName   string `toml:"dbname"`
}

type RedisConfig struct {
	Address string `toml:"address"`
	MaxIdle int    `toml:"max_idle"`
}

type EtcdConfig struct {
	Endpoints          []string `toml:"endpoints"`
	DialTimeoutSeconds int      `toml:"dial_timeout_seconds"`
}

func (c EtcdConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

const (
	SourceMySQL = "mysql"
	SourceRedis = "redis"
	SourceFile  = "file"
)

// SearchConfig controls where measurements come from and how the search runs
type SearchConfig struct {
	Source        string            `toml:"source"`         // mysql, redis or file
	HopCounts     []common.HopCount `toml:"hop_counts"`     // defaults to 1..4
	Workers       int               `toml:"workers"`        // 0 means one per logical CPU
	DataDir       string            `toml:"data_dir"`       // snapshot and results.json location
	ExcludeFailed bool              `toml:"exclude_failed"` // skip probes with a failed outgoing measurement
}

type ExportConfig struct {
	OutputDir string `toml:"output_dir"`
}
