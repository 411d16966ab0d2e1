package providers

import (
	"errors"
	"time"

	"github.com/gookit/validate"

	"ogd/internal/structures"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return errors.New(v.Errors.One())
	}
	return nil
}

// applyDefaults fills in the optional knobs the config file may omit.
func applyDefaults(conf *structures.Config) {
	if conf.Importer.FlushInterval <= 0 {
		conf.Importer.FlushInterval = 5 * time.Second
	}
	if conf.Importer.StallTimeout <= 0 {
		conf.Importer.StallTimeout = 5 * time.Minute
	}
	if conf.Importer.WatchdogTick <= 0 {
		conf.Importer.WatchdogTick = 10 * time.Second
	}
	if conf.Importer.ErrorDelay <= 0 {
		conf.Importer.ErrorDelay = 3 * time.Second
	}
	if conf.Archive.RequestTimeout <= 0 {
		conf.Archive.RequestTimeout = 30 * time.Second
	}
	if conf.Database.NodeChunkSize <= 0 {
		conf.Database.NodeChunkSize = 200
	}
	if conf.Database.GameChunkSize <= 0 {
		conf.Database.GameChunkSize = 100
	}
	if conf.Database.GameParallelism <= 0 {
		conf.Database.GameParallelism = 3
	}
	if conf.Cache.TTL <= 0 {
		conf.Cache.TTL = 30 * time.Second
	}
}
