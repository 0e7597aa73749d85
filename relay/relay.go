// Package relay is the HTTP side of the system: a snippet endpoint that
// re-publishes inbound snippets onto the realtime channel, and the realtime
// channel hub itself. Subscribers join the hub over a websocket or over a
// WebRTC data channel negotiated at /rtc/{channel}.
package relay

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
)

// Publisher sends envelopes onto the realtime channel.
type Publisher interface {
	Publish(ctx context.Context, env message.Envelope) error
}

// Config holds configuration for a Server.
type Config struct {
	// Channel is the realtime channel snippets are published to.
	Channel string
	Hub     HubConfig
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Server routes the relay's HTTP endpoints.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	mux       *http.ServeMux
	hub       *Hub
	publisher Publisher
}

// New creates a server. Snippets go to pub, or to the server's own hub when
// pub is nil.
func New(cfg Config, pub Publisher) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Hub.Logger == nil {
		cfg.Hub.Logger = logger
	}
	if cfg.Hub.Metrics == nil {
		cfg.Hub.Metrics = cfg.Metrics
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		hub:    NewHub(cfg.Hub),
	}
	s.publisher = pub
	if s.publisher == nil {
		s.publisher = s.hub.Publisher(cfg.Channel)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/snippet", SnippetHandler{
		Publisher: s.publisher,
		Logger:    s.logger,
		Metrics:   s.cfg.Metrics,
	})
	s.mux.Handle("/realtime/{channel}", s.hub)
	s.mux.HandleFunc("/rtc/{channel}", s.hub.ServeRTC)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	s.mux.Handle("/", NotFoundHandler{})
}

// Hub returns the server's realtime channel hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = Recover(s.logger, h)
	h = AccessLog(s.logger, h)
	return h
}
