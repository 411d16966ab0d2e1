package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"ogd/internal/structures"
)

type TypeEnum int

const (
	TypeApp TypeEnum = iota
	TypeImport
	TypeWrite
	TypeGet
	TypePost
)

// Logger is the logging surface used across the daemon. Each TypeEnum maps
// to its own log file so import traffic does not drown the app log.
type Logger interface {
	Errorf(t TypeEnum, format string, args ...interface{})
	Warnf(t TypeEnum, format string, args ...interface{})
	Infof(t TypeEnum, format string, args ...interface{})
	Debugf(t TypeEnum, format string, args ...interface{})
	Fatalf(t TypeEnum, format string, args ...interface{})
	Close()
}

func GetLogTypeByRequestType(method string) TypeEnum {
	if method == "POST" {
		return TypePost
	}
	return TypeGet
}

type LogProvider struct {
	loggers map[TypeEnum]zerolog.Logger
	files   []*os.File
}

var logFileNames = map[TypeEnum]string{
	TypeApp:    "app.log",
	TypeImport: "import.log",
	TypeWrite:  "write.log",
	TypeGet:    "access.log",
	TypePost:   "access.log",
}

func NewLogProvider(conf *structures.Config) (Logger, error) {
	level, err := zerolog.ParseLevel(conf.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.Logger.Level, err)
	}

	p := &LogProvider{loggers: make(map[TypeEnum]zerolog.Logger)}
	opened := make(map[string]*os.File)

	for t, name := range logFileNames {
		f, ok := opened[name]
		if !ok {
			f, err = os.OpenFile(
				filepath.Join(conf.Logger.Dir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND,
				os.FileMode(conf.Logger.Mode),
			)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("open log file %s: %w", name, err)
			}
			opened[name] = f
			p.files = append(p.files, f)
		}
		p.loggers[t] = zerolog.New(f).Level(level).With().Timestamp().Logger()
	}

	return p, nil
}

func (p *LogProvider) Errorf(t TypeEnum, format string, args ...interface{}) {
	l := p.loggers[t]
	l.Error().Msgf(format, args...)
}

func (p *LogProvider) Warnf(t TypeEnum, format string, args ...interface{}) {
	l := p.loggers[t]
	l.Warn().Msgf(format, args...)
}

func (p *LogProvider) Infof(t TypeEnum, format string, args ...interface{}) {
	l := p.loggers[t]
	l.Info().Msgf(format, args...)
}

func (p *LogProvider) Debugf(t TypeEnum, format string, args ...interface{}) {
	l := p.loggers[t]
	l.Debug().Msgf(format, args...)
}

func (p *LogProvider) Fatalf(t TypeEnum, format string, args ...interface{}) {
	l := p.loggers[t]
	l.Fatal().Msgf(format, args...)
}

func (p *LogProvider) Close() {
	for _, f := range p.files {
		_ = f.Close()
	}
}
