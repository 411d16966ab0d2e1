package structures

import (
	"net/http"
	"time"
)

type CliFlags struct {
	ConfigPath string
	DebugMode  bool
}

type Route struct {
	Url     string
	Handler http.Handler
}

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type ArchiveConfig struct {
	BaseURL        string        `yaml:"baseURL" validate:"required|fullUrl"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	UserAgent      string        `yaml:"userAgent"`
}

type ImporterConfig struct {
	DefaultMaxGames int           `yaml:"defaultMaxGames" validate:"required|min:1"`
	FlushGames      int           `yaml:"flushGames" validate:"required|min:1"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	OpeningDepth    int           `yaml:"openingDepth" validate:"required|min:2"`
	StallTimeout    time.Duration `yaml:"stallTimeout"`
	WatchdogTick    time.Duration `yaml:"watchdogTick"`
	ErrorDelay      time.Duration `yaml:"errorDelay"`
	StatePath       string        `yaml:"statePath" validate:"required|unixPath"`
	ProfileOwner    string        `yaml:"profileOwner" validate:"required"`
}

type DatabaseConfig struct {
	DSN             string `yaml:"dsn" validate:"required"`
	NodeChunkSize   int    `yaml:"nodeChunkSize"`
	GameChunkSize   int    `yaml:"gameChunkSize"`
	GameParallelism int    `yaml:"gameParallelism"`
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

type MirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName   string
	Debug     bool
	Path      string
	Importer  ImporterConfig `yaml:"importer"`
	Archive   ArchiveConfig  `yaml:"archive"`
	Database  DatabaseConfig `yaml:"database"`
	Mirror    MirrorConfig   `yaml:"mirror"`
	WebServer Server         `yaml:"webServer"`
	Logger    LoggerConfig   `yaml:"logger"`
	Cache     CacheConfig    `yaml:"cache"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}
