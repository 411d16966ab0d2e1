package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"ogd/internal/structures"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	filename := filepath.Base(flags.ConfigPath)
	viper.AddConfigPath(filepath.Dir(flags.ConfigPath))
	viper.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	viper.SetConfigType("yaml")

	viper.BindEnv("logger.level", "OGD_LOG_LEVEL")
	viper.BindEnv("archive.baseURL", "OGD_ARCHIVE_URL")
	viper.BindEnv("database.dsn", "OGD_DATABASE_DSN")
	viper.BindEnv("importer.defaultMaxGames", "OGD_DEFAULT_MAX_GAMES")
	viper.BindEnv("importer.stallTimeout", "OGD_STALL_TIMEOUT")
	viper.BindEnv("mirror.dir", "OGD_MIRROR_DIR")
	viper.BindEnv("cache.enabled", "OGD_CACHE_ENABLED")
	viper.BindEnv("cache.size", "OGD_CACHE_SIZE")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	applyDefaults(&conf)

	conf.AppName = "OpeningGraphDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
