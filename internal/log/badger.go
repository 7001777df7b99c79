package log

import (
	"strings"

	"github.com/rs/zerolog"
)

// Badger adapts a zerolog logger to badger's Logger interface.
type Badger struct {
	L zerolog.Logger
}

func (l *Badger) Errorf(m string, f ...interface{}) {
	l.L.Error().Msgf(clean(m), f...)
}

func (l *Badger) Warningf(m string, f ...interface{}) {
	l.L.Warn().Msgf(clean(m), f...)
}

func (l *Badger) Infof(m string, f ...interface{}) {
	l.L.Info().Msgf(clean(m), f...)
}

func (l *Badger) Debugf(m string, f ...interface{}) {
	l.L.Debug().Msgf(clean(m), f...)
}

func clean(m string) string {
	return strings.TrimSuffix(m, "\n")
}
