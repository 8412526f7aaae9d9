// Package feed serves a live stream of unit conversions. Readings published
// to a named channel are converted into the channel's display unit, kept in a
// bounded history and broadcast to websocket clients.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/chosenoffset/measure/pkg/units"
	"github.com/chosenoffset/measure/pkg/units/actions"
	"github.com/chosenoffset/measure/pkg/units/metrics"
)

const (
	DefaultPort        = 9090
	DefaultHistorySize = 500
	DefaultMaxClients  = 100

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var (
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrDuplicateChannel = errors.New("channel already exists")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrNonFinite        = errors.New("quantity is not finite")
)

// Channel is a named stream whose readings are shown in Display.
type Channel struct {
	Name    string
	Display *units.Unit
}

type channelState struct {
	channel Channel
	history []Reading
	index   int
	count   int
}

// Server holds the channels and the websocket clients watching them.
type Server struct {
	port        int
	historySize int
	maxClients  int
	logger      logrus.FieldLogger
	registry    *prometheus.Registry
	actions     *actions.ActionRegistry

	conversions *metrics.ConversionMetrics
	httpMetrics *metrics.HTTPMetrics

	server   *http.Server
	upgrader websocket.Upgrader

	clients      map[*client]bool
	clientsMutex sync.RWMutex

	// mutex guards channels and server
	channels map[string]*channelState
	mutex    sync.RWMutex

	messages  chan message
	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	handler   http.Handler
}

// Option configures a Server.
type Option func(*Server)

func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithHistorySize sets how many readings each channel keeps.
func WithHistorySize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.historySize = n
		}
	}
}

func WithMaxClients(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry registers the feed's collectors on reg instead of a private
// registry. /metrics serves reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithActions routes conversion outcomes to registry.
func WithActions(registry *actions.ActionRegistry) Option {
	return func(s *Server) { s.actions = registry }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		port:        DefaultPort,
		historySize: DefaultHistorySize,
		maxClients:  DefaultMaxClients,
		logger:      logrus.StandardLogger(),
		clients:     make(map[*client]bool),
		channels:    make(map[string]*channelState),
		messages:    make(chan message, 100),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.conversions = metrics.NewConversionMetrics(s.registry)
	s.httpMetrics = metrics.NewHTTPMetrics(s.registry)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// AddChannel registers a channel displayed in unit display.
func (s *Server) AddChannel(name string, display *units.Unit) error {
	if name == "" || display == nil {
		return fmt.Errorf("%w: name and display unit are required", ErrInvalidChannel)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.channels[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	s.channels[name] = &channelState{
		channel: Channel{Name: name, Display: display},
		history: make([]Reading, s.historySize),
	}
	s.logger.WithFields(logrus.Fields{"channel": name, "unit": display.String()}).Debug("channel added")
	return nil
}

// Channels returns the registered channels sorted by name.
func (s *Server) Channels() []Channel {
	s.mutex.RLock()
	out := make([]Channel, 0, len(s.channels))
	for _, st := range s.channels {
		out = append(out, st.channel)
	}
	s.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Instrument wraps next with the feed's HTTP metrics, so handlers served
// elsewhere show up on the feed's /metrics.
func (s *Server) Instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return s.httpMetrics.Middleware(name, next)
}

// Handler returns the feed's HTTP handler and starts the broadcast loop.
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/channels", s.httpMetrics.Middleware("channels", s.handleChannels))
		mux.HandleFunc("/api/history", s.httpMetrics.Middleware("history", s.handleHistory))
		mux.HandleFunc("/api/stats", s.httpMetrics.Middleware("stats", s.handleStats))
		mux.HandleFunc("/ws", s.handleWebSocket)
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		s.handler = mux

		go s.broadcast()
	})
	return s.handler
}

// Start serves the feed on the configured port until Stop is called. Start
// after Stop returns nil without listening.
func (s *Server) Start() error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mutex.Lock()
	select {
	case <-s.stop:
		s.mutex.Unlock()
		return nil
	default:
	}
	s.server = server
	s.mutex.Unlock()

	s.logger.WithField("port", s.port).Info("starting measure feed")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	s.mutex.Lock()
	s.stopOnce.Do(func() { close(s.stop) })
	server := s.server
	s.mutex.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == fmt.Sprintf("http://localhost:%d", s.port) ||
		origin == fmt.Sprintf("http://127.0.0.1:%d", s.port)
}
