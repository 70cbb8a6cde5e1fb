package main

import (
	// standard library
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// third-party
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	// internal
	"github.com/lukezje16/pdfmerger/internal/auth"
	"github.com/lukezje16/pdfmerger/internal/config"
	"github.com/lukezje16/pdfmerger/internal/database"
	"github.com/lukezje16/pdfmerger/internal/handlers"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/manager"
	"github.com/lukezje16/pdfmerger/internal/normalizer"
	"github.com/lukezje16/pdfmerger/internal/pdfprocessor"
	"github.com/lukezje16/pdfmerger/internal/registry"
	"github.com/lukezje16/pdfmerger/internal/security"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
	"github.com/lukezje16/pdfmerger/internal/sweeper"
	"github.com/lukezje16/pdfmerger/internal/validator"
	"github.com/lukezje16/pdfmerger/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env if present
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		logging.Errorf("[STARTUP] %v", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(settings.LogLevel, settings.LogFormat, os.Stdout)
	gin.SetMode(settings.GinMode)
	logging.Logf("[STARTUP] %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, healthCheck, closeStore, err := openSessionStore(settings)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := storage.Open(ctx, storage.LoadConfig())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	scratchDir, err := filepath.Abs(settings.ScratchDir)
	if err != nil {
		return fmt.Errorf("scratch directory: %w", err)
	}
	scratch, err := security.NewSecurePathFromExisting(scratchDir)
	if err != nil {
		return fmt.Errorf("scratch directory: %w", err)
	}
	if err := security.SafeMkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	norm, err := normalizer.New(normalizer.Config{
		Path:       settings.NormalizerPath,
		Compat:     settings.NormalizerCompat,
		Settings:   settings.NormalizerSettings,
		Timeout:    settings.NormalizerTimeout,
		ScratchDir: scratchDir,
	})
	if err != nil {
		return err
	}
	if gs, err := norm.Locate(); err == nil {
		logging.Logf("[STARTUP] Ghostscript found at %s", gs)
	} else {
		logging.Warnf("[STARTUP] Ghostscript not found; PDFs with unsupported compression will be rejected")
	}

	clock := clockwork.NewRealClock()
	sw, err := sweeper.New(blobs, store, clock, sweeper.Config{
		FileExpiry:    settings.FileExpiry,
		ScratchExpiry: settings.ScratchExpiry,
		ScratchDir:    scratchDir,
	})
	if err != nil {
		return err
	}
	if _, err := sw.Sweep(ctx); err != nil {
		logging.Warnf("[STARTUP] initial sweep: %v", err)
	}

	mgr, err := manager.New(manager.Deps{
		Files:     registry.NewFiles(store, blobs, clock),
		Tickets:   registry.NewTickets(store, blobs, clock, settings.FileExpiry),
		Sweeper:   sw,
		Merger:    pdfprocessor.NewConcatenator(norm),
		Validator: validator.New(settings.MaxFileSize),
		Blobs:     blobs,
		Clock:     clock,
	}, manager.Config{
		MaxFilesPerSession: settings.MaxFilesPerSession,
		MergeTimeout:       settings.MergeTimeout,
		ScratchDir:         scratchDir,
	})
	if err != nil {
		return err
	}

	h := handlers.New(mgr, handlers.Options{
		MaxFileSize:         settings.MaxFileSize,
		MaxFilesPerSession:  settings.MaxFilesPerSession,
		FileExpiry:          settings.FileExpiry,
		NormalizerAvailable: norm.Available,
		HealthCheck:         healthCheck,
	})

	router := gin.New()
	router.Use(handlers.RequestLogger(), gin.Recovery())
	sessions := auth.NewSessions(auth.SessionConfig{
		Secret: settings.SessionSecret,
		TTL:    settings.SessionTTL,
		Secure: !settings.AllowInsecure,
	}, clock)
	h.Register(router, sessions, auth.NewRateLimiter(settings.UploadRatePerMin, settings.UploadRateBurst))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
	})

	worker := sweeper.NewWorker(sw, settings.SweepInterval)
	worker.Start()
	defer worker.Stop()

	srv := &http.Server{
		Addr:              settings.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      settings.MergeTimeout + time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logf("[STARTUP] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Logf("[SHUTDOWN] signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Logf("[SHUTDOWN] server stopped")
	return nil
}

// openSessionStore builds the configured session store along with its health
// probe and closer.
func openSessionStore(settings *config.Settings) (session.Store, func(context.Context) error, func(), error) {
	if settings.SessionStore == "memory" {
		logging.Logf("[STARTUP] Using in-memory session store")
		return session.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := database.Open(database.GetDatabaseConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	health := func(ctx context.Context) error { return database.Ping(ctx, db) }
	closer := func() {
		if err := database.Close(db); err != nil {
			logging.Warnf("[SHUTDOWN] closing database: %v", err)
		}
	}
	return database.NewStore(db), health, closer, nil
}
