package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

func main() {
	configPath := kingpin.Flag("config", "Optional YAML config file.").Short('c').String()
	kingpin.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.Configure(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, store, err := openStore(openCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db open failed")
	}
	defer dbh.Close()

	if cfg.AdminPassHash != "" {
		created, err := db.EnsureAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash)
		if err != nil {
			log.Fatal().Err(err).Msg("ensure admin")
		}
		if created {
			log.Info().Str("user", cfg.AdminUser).Msg("admin user created")
		}
	}

	events := syncx.NewEventRepo(dbh, "")
	svc := exam.NewService(store,
		exam.WithGrader(grading.NewDefaultGrader(
			grading.WithPartialMulti(cfg.PartialMultiCredit),
			grading.WithFillBlankMatching(cfg.GradeFillBlank),
		)),
		exam.WithEvents(events),
		exam.WithSubmitGrace(cfg.SubmitGrace),
		exam.WithSaveInterval(cfg.SaveInterval),
		exam.WithLogger(log.With().Str("component", "exam").Logger()),
	)

	sweeper := &exam.Sweeper{
		Service:  svc,
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
		Parallel: cfg.SweepParallel,
		Log:      log.With().Str("component", "sweeper").Logger(),
	}
	go sweeper.Run(ctx)

	// --- Router ---
	r := api.NewRouter(api.Deps{
		Service:         svc,
		Auth:            auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
		Users:           users.NewStore(dbh),
		Events:          events,
		DB:              dbh,
		CORSOrigins:     cfg.CORSOrigins,
		EnableLocalAuth: cfg.EnableLocalAuth,
		AttachRole:      true,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("mode", string(cfg.Mode)).Str("db", cfg.DBDriver).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("stopped")
}

// openStore returns the database and the attempt store for the configured
// mode. Memory mode keeps exams and attempts in process but still needs an
// in-memory sqlite database for users and the event log.
func openStore(ctx context.Context, cfg config.Config) (*sql.DB, exam.Store, error) {
	if cfg.Mode == config.ModeMemory {
		dbh, err := db.Open(ctx, db.DriverSQLite, "file:gateway?mode=memory&cache=shared&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, nil, err
		}
		return dbh, exam.NewInMemoryStore(), nil
	}
	driver := db.Driver(cfg.DBDriver)
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return dbh, exam.NewSQLStore(dbh, driver), nil
}
