package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stevemurr/butterfly-api/handler"
	"github.com/stevemurr/butterfly-api/service"
	"github.com/stevemurr/butterfly-api/store"
)

// Config is the server configuration after flags, env files and
// environment variables have been merged.
type Config struct {
	Host           string
	Port           string
	DBPath         string
	Backend        string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

var (
	serveConfig = &Config{}
	serveCmd    = &cobra.Command{
		Use:     "serve",
		Short:   "Start the API server",
		Long:    `Start the API server. Every flag can also be set through an environment variable named BUTTERFLY_<FLAG> (e.g. BUTTERFLY_DB_PATH=./db.json), or in a .env / .env.local file.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := serveCmd.PersistentFlags()
	flags.String("host", "0.0.0.0", "address to listen on")
	flags.String("port", "8000", "port to listen on")
	flags.String("db-path", "./data/db.json", "location of the database file")
	flags.String("backend", "json", "storage backend (json, sqlite, bolt, memory)")
	flags.String("allowed-origins", "*", "comma-separated CORS allow list")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
}

// initConfig loads env files and makes viper read BUTTERFLY_* variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("butterfly")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	*serveConfig = cfg
	return nil
}

// loadConfig reads and checks the server configuration from v.
func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Host:      v.GetString("host"),
		Port:      v.GetString("port"),
		DBPath:    v.GetString("db-path"),
		Backend:   v.GetString("backend"),
		LogLevel:  v.GetString("log-level"),
		LogFormat: v.GetString("log-format"),
	}
	for _, o := range strings.Split(v.GetString("allowed-origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("port must not be empty")
	}
	if cfg.DBPath == "" && cfg.Backend != "memory" {
		return Config{}, fmt.Errorf("db-path is required for the %q backend", cfg.Backend)
	}
	return cfg, nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", cfg.LogFormat)
	}
	return log, nil
}

// newServer opens the store and wires the service and handler on top of it.
func newServer(cfg Config, log *logrus.Logger) (*http.Server, *store.DB, error) {
	backend, err := store.New(cfg.Backend, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(backend, store.WithLogger(log.WithField("backend", cfg.Backend)))
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("open %s store at %s: %w", cfg.Backend, cfg.DBPath, err)
	}
	svc, err := service.New(db, log.WithField("component", "service"))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	h := handler.New(svc, handler.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log.WithField("component", "http"),
	})
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}, db, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := *serveConfig
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	srv, db, err := newServer(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": cfg.Backend,
			"db":      cfg.DBPath,
		}).Info("butterfly API started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
