package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/joelkehle/safe-negotiator/internal/benchmark"
	"github.com/joelkehle/safe-negotiator/internal/extract"
	"github.com/joelkehle/safe-negotiator/internal/httpapi"
	"github.com/joelkehle/safe-negotiator/internal/report"
	"github.com/joelkehle/safe-negotiator/internal/telemetry"
	"github.com/joelkehle/safe-negotiator/internal/termstore"
)

type serverEnv struct {
	Addr           string  `env:"SAFE_API_ADDR" envDefault:":8080"`
	DBPath         string  `env:"SAFE_DB_PATH"`
	StateFile      string  `env:"SAFE_STATE_FILE" envDefault:"./data/terms.json"`
	StoreBackend   string  `env:"SAFE_STORE_BACKEND" envDefault:"memory"`
	BenchmarksFile string  `env:"SAFE_BENCHMARKS_FILE"`
	RateLimit      float64 `env:"SAFE_RATE_LIMIT" envDefault:"50"`
	OTelEndpoint   string  `env:"SAFE_OTEL_ENDPOINT"`
	DisablePDF     bool    `env:"SAFE_DISABLE_PDF"`
	PDFPaper       string  `env:"SAFE_PDF_PAPER" envDefault:"letter"`
}

func loadServerEnv(args []string) (serverEnv, error) {
	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	fs := flag.NewFlagSet("safe-api", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (overrides SAFE_API_ADDR)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite database file (overrides SAFE_DB_PATH)")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "term store backend: memory, file or sqlite")
	fs.StringVar(&cfg.BenchmarksFile, "benchmarks", cfg.BenchmarksFile, "YAML benchmark overrides")
	fs.StringVar(&cfg.PDFPaper, "paper", cfg.PDFPaper, "report paper size: letter or a4")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if _, err := report.PaperOptions(cfg.PDFPaper); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openStore resolves the term store: --db / SAFE_DB_PATH selects sqlite,
// otherwise SAFE_STORE_BACKEND picks memory or the JSON state file.
func openStore(cfg serverEnv) (termstore.Store, error) {
	if cfg.DBPath != "" {
		s, err := termstore.NewSQLiteStore(cfg.DBPath, termstore.Config{})
		if err != nil {
			return nil, fmt.Errorf("sqlite store (%s): %w", cfg.DBPath, err)
		}
		log.Printf("using sqlite store at %s", cfg.DBPath)
		return s, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "memory":
		log.Printf("using in-memory term store")
		return termstore.NewMemoryStore(termstore.Config{}), nil
	case "file":
		s, err := termstore.NewFileStore(cfg.StateFile, termstore.Config{})
		if err != nil {
			return nil, fmt.Errorf("file store (%s): %w", cfg.StateFile, err)
		}
		log.Printf("using file store at %s", cfg.StateFile)
		return s, nil
	case "sqlite":
		return nil, errors.New("sqlite backend requires SAFE_DB_PATH or --db")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func main() {
	cfg, err := loadServerEnv(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "safe-api", cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	table := benchmark.DefaultTable
	if cfg.BenchmarksFile != "" {
		if table, err = benchmark.LoadTable(cfg.BenchmarksFile); err != nil {
			log.Fatalf("benchmarks: %v", err)
		}
		log.Printf("loaded benchmark overrides from %s", cfg.BenchmarksFile)
	}

	var renderer report.Renderer
	if !cfg.DisablePDF {
		paper, _ := report.PaperOptions(cfg.PDFPaper)
		renderer = report.NewChromiumPDFRenderer(paper)
	}
	var extractor *extract.LLMExtractor
	if caller, err := extract.NewAnthropicCallerFromEnv(); err == nil {
		extractor = extract.NewLLMExtractor(caller)
		log.Printf("llm extraction enabled")
	} else {
		log.Printf("llm extraction disabled: %v", err)
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewServer(httpapi.Config{
			Store:      store,
			Benchmarks: table,
			Renderer:   renderer,
			Extractor:  extractor,
			RateLimit:  cfg.RateLimit,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("safe-api listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
