// Package app wires configuration into stores and services. It is shared by
// the HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/learning"
	"github.com/p-n-ai/pai-lms/internal/platform/cache"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
	"github.com/p-n-ai/pai-lms/internal/platform/config"
	"github.com/p-n-ai/pai-lms/internal/platform/database"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

// EnrolmentsFile is the optional enrolment seed read from the content
// directory in memory mode.
const EnrolmentsFile = "enrolments.yaml"

// App holds the wired components.
type App struct {
	Config     *config.Config
	Clock      clock.Clock
	Content    content.Reader
	Attempts   attempt.Store
	Enrolments enrolment.Store
	Ledgers    progress.Store
	Events     events.Logger
	History    events.History
	Broker     events.Broker
	Gates      *gate.Set
	Sync       *progress.Synchronizer
	Learning   *learning.Service

	// DB and Cache are nil in memory mode. Cache is also nil when the
	// cache could not be reached at start.
	DB    *database.DB
	Cache *cache.Cache
}

// Options tweak New.
type Options struct {
	// Migrate applies the schema before the stores are used.
	Migrate bool
	Clock   clock.Clock
}

// New builds an App for cfg.Storage.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Clock: opts.Clock}
	if a.Clock == nil {
		a.Clock = clock.System{}
	}

	var err error
	switch cfg.Storage {
	case "memory":
		err = a.openMemory(ctx)
	case "postgres":
		err = a.openPostgres(ctx, opts.Migrate)
	default:
		err = fmt.Errorf("unknown storage %q", cfg.Storage)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gates = gate.NewSet(a.Enrolments, a.Clock,
		gate.New(gate.KindLLND, GateConfig(gate.KindLLND, cfg.LLND), a.Attempts),
		gate.New(gate.KindPTR, GateConfig(gate.KindPTR, cfg.PTR), a.Attempts),
	)
	a.Sync = progress.NewSynchronizer(progress.SynchronizerConfig{
		Content:  a.Content,
		Attempts: a.Attempts,
		Gates:    a.Gates,
		Ledgers:  a.Ledgers,
		Events:   a.Events,
		Broker:   a.Broker,
		Clock:    a.Clock,
	})
	a.Learning = learning.NewService(learning.Config{
		Content:    a.Content,
		Attempts:   a.Attempts,
		Enrolments: a.Enrolments,
		Gates:      a.Gates,
		Sync:       a.Sync,
		Events:     a.Events,
		Clock:      a.Clock,
	})

	slog.Info("app ready",
		"storage", cfg.Storage,
		"llnd_enforced", cfg.LLND.Enforcement && !cfg.LLND.Skip,
		"ptr_enforced", cfg.PTR.Enforcement && !cfg.PTR.Skip,
		"cache", a.Cache != nil,
	)
	return a, nil
}

func (a *App) openMemory(ctx context.Context) error {
	reader, err := content.LoadDir(a.Config.ContentPath)
	if err != nil {
		return err
	}
	enrolments := enrolment.NewMemoryStore()
	if err := SeedEnrolments(ctx, enrolments, filepath.Join(a.Config.ContentPath, EnrolmentsFile)); err != nil {
		return err
	}
	logger := events.NewMemoryLogger()

	a.Content = reader
	a.Attempts = attempt.NewMemoryStore()
	a.Enrolments = enrolments
	a.Ledgers = progress.NewMemoryStore()
	a.Events = logger
	a.History = logger
	a.Broker = events.NewMemoryBroker()
	return nil
}

func (a *App) openPostgres(ctx context.Context, migrate bool) error {
	cfg := a.Config
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.DB = db
	if migrate {
		if err := database.Migrate(ctx, db.Pool); err != nil {
			return err
		}
	}
	a.usePool(db.Pool)

	c, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		slog.Warn("cache unavailable, running without it", "error", err)
		a.Broker = events.NewMemoryBroker()
		return nil
	}
	a.Cache = c
	a.Content = content.NewCachedReader(a.Content, c, cfg.Cache.TTL)
	a.Broker = events.NewRedisBroker(c.Client)
	return nil
}

// usePool installs the Postgres stores.
func (a *App) usePool(pool *pgxpool.Pool) {
	logger := events.NewPostgresLogger(pool)
	a.Content = content.NewPostgresReader(pool)
	a.Attempts = attempt.NewPostgresStore(pool)
	a.Enrolments = enrolment.NewPostgresStore(pool)
	a.Ledgers = progress.NewPostgresStore(pool)
	a.Events = logger
	a.History = logger
}

// Ready checks the backing services.
func (a *App) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if a.DB != nil {
		if err := a.DB.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			slog.Warn("close cache", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// GateConfig converts one prerequisite section of the configuration. The
// PTR cutoff is its implementation date, so enrolments created on or
// before it are grandfathered.
func GateConfig(kind gate.Kind, p config.PrerequisiteConfig) gate.Config {
	return gate.Config{
		Enforcement:            p.Enforcement,
		Skip:                   p.Skip,
		QuizID:                 p.QuizID,
		LegacyQuizID:           p.LegacyQuizID,
		ExcludedCategories:     p.ExcludedCategories,
		CutoffDate:             p.CutoffDate,
		GrandfatherByEnrolment: kind == gate.KindPTR,
		Strictness:             gate.Strictness(p.Strictness),
	}
}

type enrolmentSeed struct {
	Enrolments []struct {
		StudentID     string    `yaml:"student_id"`
		CourseID      string    `yaml:"course_id"`
		CourseTitle   string    `yaml:"course_title"`
		Category      string    `yaml:"category"`
		Status        string    `yaml:"status"`
		CourseStartAt time.Time `yaml:"course_start_at"`
		CreatedAt     time.Time `yaml:"created_at"`
	} `yaml:"enrolments"`
}

// SeedEnrolments loads enrolments from a YAML file into s. A missing file
// is not an error.
func SeedEnrolments(ctx context.Context, s enrolment.Store, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read enrolments: %w", err)
	}

	var seed enrolmentSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, e := range seed.Enrolments {
		status := enrolment.Status(e.Status)
		if status == "" {
			status = enrolment.StatusEnrolled
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = e.CourseStartAt
		}
		if _, err := s.Create(ctx, enrolment.Enrolment{
			StudentID:      e.StudentID,
			CourseID:       e.CourseID,
			CourseTitle:    e.CourseTitle,
			CourseCategory: e.Category,
			Status:         status,
			CourseStartAt:  e.CourseStartAt,
			CreatedAt:      created,
		}); err != nil {
			return fmt.Errorf("seed enrolment %s/%s: %w", e.StudentID, e.CourseID, err)
		}
	}
	slog.Info("enrolments seeded", "count", len(seed.Enrolments))
	return nil
}
