package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentoria/practice-hub/config"
	"github.com/mentoria/practice-hub/internal/application/reconcile"
	appstreak "github.com/mentoria/practice-hub/internal/application/streak"
	appsubscription "github.com/mentoria/practice-hub/internal/application/subscription"
	"github.com/mentoria/practice-hub/internal/domain/audit"
	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/internal/domain/practice"
	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/internal/infrastructure/persistence/postgres"
	"github.com/mentoria/practice-hub/internal/infrastructure/persistence/redis"
	"github.com/mentoria/practice-hub/internal/infrastructure/persistence/sqlite"
	progressengine "github.com/mentoria/practice-hub/internal/infrastructure/progress"
	"github.com/mentoria/practice-hub/pkg/retry"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// lockResource - ключ блокировки прогона в Redis.
const lockResource = "reconcile"

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// store - репозитории одного хранилища и его менеджер транзакций.
type store struct {
	students  student.Repository
	practices practice.Repository
	pauses    pause.Repository
	audit     audit.Recorder
	tx        shared.TxManager
	close     func()
}

// openStore подключается к хранилищу, выбранному DATABASE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store, error) {
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("store connection failed, retrying",
			"driver", cfg.Database.Driver,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	}
	policy := retry.ConnectPolicy(cfg.Database.ConnectAttempts, onRetry)

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("connected to SQLite", "path", cfg.Database.SQLitePath)

		return &store{
			students:  sqlite.NewStudentRepository(db),
			practices: sqlite.NewPracticeRepository(db),
			pauses:    sqlite.NewPauseRepository(db),
			audit:     sqlite.NewAuditRepository(db),
			tx:        db,
			close:     func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		conn, err := retry.Value(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		})
		if err != nil {
			return nil, err
		}

		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		log.Info("connected to PostgreSQL")

		return &store{
			students:  postgres.NewStudentRepository(conn),
			practices: postgres.NewPracticeRepository(conn),
			pauses:    postgres.NewPauseRepository(conn),
			audit:     postgres.NewAuditRepository(conn),
			tx:        conn,
			close:     conn.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// openRedis подключается к Redis с повторами.
func openRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	policy := retry.ConnectPolicy(cfg.Database.ConnectAttempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("redis connection failed, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	})

	cache, err := retry.Value(ctx, policy, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisCfg)
	})
	if err != nil {
		return nil, err
	}
	log.Info("connected to Redis", "addr", redisCfg.Addr())
	return cache, nil
}

// progressConfig строит лестницу уровней: заданные значения поверх умолчаний.
func progressConfig(cfg config.ProgressConfig) (progressengine.Config, error) {
	out := progressengine.DefaultConfig()
	if len(cfg.LevelThresholds) > 0 {
		out.LevelThresholds = cfg.LevelThresholds
	}
	if len(cfg.PhaseBands) > 0 {
		bands, err := progressengine.ParseBands(cfg.PhaseBands)
		if err != nil {
			return progressengine.Config{}, err
		}
		out.PhaseBands = bands
	}
	if err := out.Validate(); err != nil {
		return progressengine.Config{}, fmt.Errorf("progress config: %w", err)
	}
	return out, nil
}

// phaseFeatures связывает этапы сверки с их флагами.
var phaseFeatures = map[reconcile.Phase]string{
	reconcile.PhasePauses:   config.FeatureReconcilePauses,
	reconcile.PhaseStreaks:  config.FeatureReconcileStreaks,
	reconcile.PhaseProgress: config.FeatureReconcileProgress,
}

// phaseRollout ограничивает этап студентами, попавшими в процент раскатки
// его флага. Этап целиком выключается флагом отдельно, через Config.
func phaseRollout(flags *config.FeatureFlags) reconcile.RolloutFunc {
	return func(phase reconcile.Phase, studentID string) bool {
		name, ok := phaseFeatures[phase]
		if !ok {
			return true
		}
		return flags.IsEnabled(name, &config.FeatureContext{StudentID: studentID})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// app - собранный граф зависимостей. Каждое хранилище создаётся один раз.
type app struct {
	driver      *reconcile.Driver
	checkpoints *redis.CheckpointStore
	closers     []func()
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	ladder, err := progressConfig(cfg.Progress)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []func(){st.close}}

	clock := timeutil.SystemClock{}
	deps := reconcile.Deps{
		Students: st.students,
		Progress: progressengine.NewThresholdEngine(ladder, st.pauses),
		Audit:    st.audit,
		Clock:    clock,
		Logger:   log,
	}
	deps.Pauses = appsubscription.NewMachine(appsubscription.Deps{
		Students: st.students,
		Pauses:   st.pauses,
		Tx:       st.tx,
		Audit:    st.audit,
		Clock:    clock,
		Logger:   log,
	})

	var streakOpts []appstreak.Option
	if cfg.Redis.Enabled {
		cache, err := openRedis(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = cache.Close() })

		deps.Lock = redis.NewRunLock(cache, lockResource)
		a.checkpoints = redis.NewCheckpointStore(cache, lockResource)
		deps.Checkpoints = a.checkpoints

		if cfg.Features.IsEnabled(config.FeatureStreakCache, nil) {
			streakCache := redis.NewStreakCache(cache, cfg.Reconcile.StreakCacheTTL)
			streakOpts = append(streakOpts, appstreak.WithCache(streakCache))
			deps.StreakCache = streakCache
		}
	}
	deps.Streaks = appstreak.NewEngine(st.practices, st.pauses, log, streakOpts...)

	driverCfg := reconcile.DefaultConfig()
	driverCfg.PageSize = cfg.Reconcile.PageSize
	driverCfg.MaxDiffs = cfg.Reconcile.MaxDiffs
	driverCfg.Env = string(cfg.App.Environment)
	driverCfg.LockTTL = cfg.Reconcile.LockTTL
	driverCfg.PausesEnabled = cfg.Features.IsEnabled(config.FeatureReconcilePauses, nil)
	driverCfg.StreaksEnabled = cfg.Features.IsEnabled(config.FeatureReconcileStreaks, nil)
	driverCfg.ProgressEnabled = cfg.Features.IsEnabled(config.FeatureReconcileProgress, nil)
	deps.Rollout = phaseRollout(cfg.Features)

	a.driver = reconcile.NewDriver(deps, driverCfg)
	return a, nil
}
