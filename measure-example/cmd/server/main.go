// Package main runs the depot example: a fuel depot whose tank levels are
// unit-aware measures.
//
// The server listens on :8080 with the following API endpoints:
//   - POST /tank: create a tank measured in a catalog unit
//   - POST /fill: add a quantity in any compatible unit
//   - POST /transfer: move a quantity between tanks
//   - GET /level?id=<tank>&unit=<key>: tank level, optionally converted
//   - GET /units: catalog keys
//
// Tank levels stream on the conversion feed at http://localhost:9090.
//
// Configuration comes from an optional config file, MEASURE_* environment
// variables and flags, in increasing priority:
//
//	MEASURE_SERVER_ADDR=:8081 go run ./measure-example/cmd/server --feed-port 9191
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chosenoffset/measure/measure-example/internal/catalog"
	"github.com/chosenoffset/measure/measure-example/internal/depot"
	"github.com/chosenoffset/measure/pkg/units/actions"
	"github.com/chosenoffset/measure/pkg/units/feed"
)

type config struct {
	ServerAddr  string
	FeedPort    int
	HistorySize int
	LogLevel    string
	LogFormat   string
}

func loadConfig(args []string) (config, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("server-addr", ":8080", "depot API listen address")
	flags.Int("feed-port", feed.DefaultPort, "conversion feed port")
	flags.Int("history-size", feed.DefaultHistorySize, "readings kept per feed channel")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format (text or json)")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("measure")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"server.addr":       "server-addr",
		"feed.port":         "feed-port",
		"feed.history-size": "history-size",
		"log.level":         "log-level",
		"log.format":        "log-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return config{}, err
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return config{
		ServerAddr:  v.GetString("server.addr"),
		FeedPort:    v.GetInt("feed.port"),
		HistorySize: v.GetInt("feed.history-size"),
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
	}, nil
}

func newLogger(cfg config) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// app wires the depot to the feed.
type app struct {
	catalog *catalog.Catalog
	depot   *depot.Depot
	feed    *feed.Server
	handler http.Handler
}

func newApp(cfg config, logger logrus.FieldLogger) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handlers := actions.NewActionRegistry()
	handlers.RegisterHandler(actions.MismatchAction, actions.NewLogHandler(logger))

	f := feed.NewServer(
		feed.WithPort(cfg.FeedPort),
		feed.WithHistorySize(cfg.HistorySize),
		feed.WithLogger(logger),
		feed.WithRegistry(registry),
		feed.WithActions(handlers),
	)
	c := catalog.Standard()
	d := depot.New(c, f, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/tank", f.Instrument("tank", d.HandleCreateTank))
	mux.HandleFunc("/fill", f.Instrument("fill", d.HandleFill))
	mux.HandleFunc("/transfer", f.Instrument("transfer", d.HandleTransfer))
	mux.HandleFunc("/level", f.Instrument("level", d.HandleLevel))
	mux.HandleFunc("/units", f.Instrument("units", handleUnits(c)))

	return &app{catalog: c, depot: d, feed: f, handler: mux}
}

func handleUnits(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"units": c.Keys()})
	}
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	a := newApp(cfg, logger)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      a.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := a.feed.Start(); err != nil {
			logger.WithError(err).Error("feed server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		a.feed.Stop()
	}()

	logger.WithFields(logrus.Fields{
		"addr":      cfg.ServerAddr,
		"feed_port": cfg.FeedPort,
		"units":     len(a.catalog.Keys()),
	}).Info("depot server listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server error")
	}
}
