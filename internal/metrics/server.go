package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewRegistry returns a registry with the Go runtime and process collectors
// already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "classfs"}),
	)
	return reg
}

// Handler serves reg on /metrics. A failing collector is logged and the
// remaining metrics are still served.
func Handler(reg *prometheus.Registry) http.Handler {
	l := log.Logger.With().Str("component", "metrics").Logger()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      gatherLog{l},
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      reg,
	})))
	return mux
}

type gatherLog struct{ l zerolog.Logger }

func (g gatherLog) Println(v ...interface{}) {
	g.l.Error().Msg(fmt.Sprint(v...))
}

// Server serves the classfs metrics on a dedicated HTTP port.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

func NewServer(port int, reg *prometheus.Registry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.Logger.With().Str("component", "metrics").Int("port", port).Logger(),
	}
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Msg("starting metrics server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error().Err(err).Msg("metrics server error")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
