package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/embedder"
	"github.com/kozaktomas/rollcall/internal/enrollment"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/matching"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/kozaktomas/rollcall/internal/vecmath"

	// Storage backends register themselves with the database package.
	_ "github.com/kozaktomas/rollcall/internal/database/filestore"
	_ "github.com/kozaktomas/rollcall/internal/database/mariadb"
	_ "github.com/kozaktomas/rollcall/internal/database/postgres"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	backend    database.Backend
	store      database.EmbeddingStore
	engine     *matching.Engine
	manager    *enrollment.Manager
	ledger     *attendance.Ledger
	debouncer  *attendance.Debouncer
	recognizer *recognition.Recognizer
}

// newLogger builds the command logger. CLI logs go to stderr so stdout stays parseable.
func newLogger(cfg *config.Config) *slog.Logger {
	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	opts := []logger.Option{
		logger.WithLevel(cfg.Log.Level),
		logger.WithFormat(format),
		logger.WithWriter(os.Stderr),
	}
	if debugLogs {
		opts = append(opts, logger.WithDebug(true))
	}
	return logger.New(opts...)
}

// openApp loads the configuration, opens the storage backend and wires the services.
func openApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := newLogger(cfg)

	backend, err := database.OpenBackend(cfg.Storage.Backend, database.BackendOptions{
		DSN:          cfg.StorageDSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	a := &app{cfg: cfg, logger: log, backend: backend}
	if err := a.wire(); err != nil {
		backend.Close()
		return nil, err
	}
	log.Debug("storage ready", "backend", cfg.Storage.Backend)
	return a, nil
}

func (a *app) wire() error {
	store, err := a.backend.Embeddings(database.ModelPrimary)
	if err != nil {
		return fmt.Errorf("failed to open embedding store: %w", err)
	}
	ledgerStore, err := a.backend.Ledger()
	if err != nil {
		return fmt.Errorf("failed to open ledger store: %w", err)
	}
	a.store = store

	matchCfg := matching.Config{
		Threshold:                a.cfg.Matching.Threshold,
		CrossValidationThreshold: a.cfg.Matching.CrossValidationThreshold,
	}
	enrollCfg := enrollment.Config{MaxPerIdentity: a.cfg.Matching.MaxPerIdentity}
	if a.cfg.Matching.DuplicateCheck {
		enrollCfg.DuplicateThreshold = a.cfg.Matching.Threshold
	}

	engineOpts := []matching.EngineOption{matching.WithLogger(a.logger)}
	managerOpts := []enrollment.Option{enrollment.WithLogger(a.logger)}

	if a.cfg.CrossValidationEnabled() {
		crossStore, err := a.backend.Embeddings(a.cfg.CrossEmbedding.Model)
		if err != nil {
			return fmt.Errorf("failed to open cross-validation store: %w", err)
		}
		client := embedder.NewClient(a.cfg.CrossEmbedding.URL, a.cfg.CrossEmbedding.Model,
			embedder.WithCropSize(a.cfg.CrossEmbedding.CropSize))
		engineOpts = append(engineOpts, matching.WithCrossValidator(crossStore, client))
		managerOpts = append(managerOpts, enrollment.WithCrossValidation(crossStore, client, a.cfg.CrossEmbedding.Model))
		a.logger.Info("cross-validation enabled", "url", a.cfg.CrossEmbedding.URL, "model", a.cfg.CrossEmbedding.Model)
	}

	a.engine = matching.NewEngine(store, matchCfg, engineOpts...)
	a.manager = enrollment.NewManager(store, enrollCfg, managerOpts...)
	a.ledger = attendance.NewLedger(ledgerStore, attendance.WithLogger(a.logger))
	a.debouncer = attendance.NewDebouncer(a.cfg.Debounce.AcceptCooldown, a.cfg.Debounce.UnknownCooldown)
	a.recognizer = recognition.NewRecognizer(a.engine, a.ledger, a.debouncer, a.logger)
	return nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("failed to close storage", "error", err)
	}
}

// readVector reads a JSON embedding array from path, or from stdin when path is "-".
func readVector(path string) (vecmath.Vector, error) {
	var r io.Reader
	if path == "-" {
		r = bufio.NewReader(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var v vecmath.Vector
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode embedding %s: %w", path, err)
	}
	if v.Dim() == 0 {
		return nil, fmt.Errorf("embedding %s is empty", path)
	}
	return v, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
