package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shapedtime/classfs/internal/config"
)

const FileName = "classfs.log"

// Load configures the global zerolog logger: colored console output plus an
// optional rotating file.
func Load(cfg *config.LogConfig) {
	var writers []io.Writer

	// fix console colors on windows
	cso := colorable.NewColorableStdout()
	writers = append(writers, zerolog.ConsoleWriter{Out: cso})
	if w := newRollingFile(cfg); w != nil {
		writers = append(writers, w)
	}
	mw := io.MultiWriter(writers...)

	log.Logger = log.Output(mw)

	l := zerolog.InfoLevel
	if cfg.Debug {
		l = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(l)
}

func newRollingFile(cfg *config.LogConfig) io.Writer {
	if cfg.Path == "" {
		return nil
	}

	if err := os.MkdirAll(cfg.Path, 0744); err != nil {
		log.Error().Err(err).Str("path", cfg.Path).Msg("can't create log directory")
		return nil
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, FileName),
		MaxBackups: cfg.MaxBackups, // files
		MaxSize:    cfg.MaxSize,    // megabytes
		MaxAge:     cfg.MaxAge,     // days
	}
}
