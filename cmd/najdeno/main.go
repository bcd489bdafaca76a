package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/catalog"
	"github.com/erazemk/najdeno/internal/classify"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/store"
)

type config struct {
	dbPath          string
	blobDir         string
	addr            string
	logPath         string
	classifier      string
	classifierURL   string
	geminiModel     string
	classifyTimeout time.Duration
	adminToken      bool
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("najdeno", flag.ContinueOnError)
	cfg := &config{}

	fs.StringVar(&cfg.dbPath, "db", "najdeno.sqlite3", "")
	fs.StringVar(&cfg.dbPath, "d", "najdeno.sqlite3", "")

	fs.StringVar(&cfg.blobDir, "blobs", "images", "")
	fs.StringVar(&cfg.blobDir, "b", "images", "")

	fs.StringVar(&cfg.addr, "addr", ":8080", "")
	fs.StringVar(&cfg.addr, "a", ":8080", "")

	fs.StringVar(&cfg.logPath, "log", "", "")
	fs.StringVar(&cfg.logPath, "l", "", "")

	fs.StringVar(&cfg.classifier, "classifier", "none", "")
	fs.StringVar(&cfg.classifier, "c", "none", "")

	fs.StringVar(&cfg.classifierURL, "classifier-url", "", "")
	fs.StringVar(&cfg.geminiModel, "gemini-model", classify.DefaultGeminiModel, "")
	fs.DurationVar(&cfg.classifyTimeout, "classify-timeout", catalog.DefaultClassifyTimeout, "")
	fs.BoolVar(&cfg.adminToken, "admin-token", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: najdeno [flags]

Flags:
  -d, -db <path>              SQLite database path (default: najdeno.sqlite3)
  -b, -blobs <dir>            directory for item photos (default: images)
  -a, -addr <host:port>       listen address (default: :8080)
  -l, -log <path>             log file path (default: no file, stdout/stderr only)
  -c, -classifier <kind>      photo classifier: none, http or gemini (default: none)
  -classifier-url <url>       detection endpoint for -classifier http
  -gemini-model <name>        model for -classifier gemini (default: `+classify.DefaultGeminiModel+`)
  -classify-timeout <dur>     how long to wait for a suggestion (default: 10s)
  -admin-token                print a new admin token and exit
  -h, -help                   show this help and exit

Environment:
  GEMINI_API_KEY              API key for -classifier gemini
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config) error {
	database, err := db.Open(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	count, err := store.CountItems(context.Background(), database)
	if err != nil {
		return fmt.Errorf("counting items: %w", err)
	}
	slog.Info("database ready", "path", cfg.dbPath, "items", count)

	// Signing secret is generated on first run.
	secret, err := store.GetTokenSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("loading token secret: %w", err)
	}

	if cfg.adminToken {
		token, err := auth.GenerateToken(secret, "admin", true)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	st, err := store.New(database, cfg.blobDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	labeler, err := newClassifier(ctx, cfg, database)
	if err != nil {
		return err
	}

	svc := catalog.New(st, labeler, catalog.WithClassifyTimeout(cfg.classifyTimeout))

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(svc, secret))

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "addr", cfg.addr, "classifier", cfg.classifier)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped, closing database")
	return nil
}

// newClassifier builds the label suggester selected by -classifier.
func newClassifier(ctx context.Context, cfg *config, database *sql.DB) (*classify.Classifier, error) {
	var detector classify.Detector

	switch cfg.classifier {
	case "none", "":
		// Nothing is detected, so there is nothing worth caching.
		return classify.New(&classify.StaticDetector{}), nil
	case "http":
		if cfg.classifierURL == "" {
			return nil, fmt.Errorf("-classifier http requires -classifier-url")
		}
		detector = classify.NewHTTPDetector(cfg.classifierURL, classify.DefaultHTTPTimeout)
	case "gemini":
		g, err := classify.NewGeminiDetector(ctx, os.Getenv("GEMINI_API_KEY"), cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("creating gemini classifier: %w", err)
		}
		detector = g
	default:
		return nil, fmt.Errorf("unknown classifier %q (want none, http or gemini)", cfg.classifier)
	}

	return classify.New(detector, classify.WithCache(&store.LabelCache{DB: database})), nil
}
