package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/natefinch/lumberjack.v2"

	"anidl/internal/clients/notifications"
	"anidl/internal/clients/planners"
	"anidl/internal/config"
	"anidl/internal/core"
	"anidl/internal/database"
	"anidl/internal/series"
	"anidl/internal/utils"
)

// app holds everything a command needs once the configuration is loaded.
type app struct {
	cfg      config.Config
	logger   *utils.Logger
	errorLog *utils.ErrorLog
	repo     *series.Repository
	db       *sql.DB
	recorder *database.Recorder
	closers  []io.Closer
}

// openApp wires logging, the error log, the series repository and, when
// withHistory is set, the run history database. With quiet set the
// application log goes to app.log only so a live status table can own the
// terminal.
func openApp(cfg config.Config, quiet, withHistory bool) (*app, error) {
	logDir := filepath.Join(cfg.App.DataPath, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	appLog := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "app.log"),
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	}
	a := &app{cfg: cfg, closers: []io.Closer{appLog}}
	if quiet {
		a.logger = utils.NewWriterLogger(cfg.App.Debug, appLog)
	} else {
		a.logger = utils.NewLogger(cfg.App.Debug, appLog)
	}

	errorLog, err := utils.NewErrorLog(cfg.App.ErrorLog, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.errorLog = errorLog
	a.closers = append(a.closers, errorLog)
	a.repo = series.NewRepository(cfg.App.SeriesFile)

	if withHistory {
		db, applied, err := database.Open(cfg.Database.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		for _, version := range applied {
			a.logger.Info("Applied migration:", version)
		}
		a.db = db
		a.recorder = database.NewRecorder(db)
		a.closers = append(a.closers, db)
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func (a *app) notifiers() []notifications.Notifier {
	if a.cfg.Notifications.PushbulletAPIKey == "" {
		return nil
	}
	return []notifications.Notifier{notifications.NewPushbulletClient(a.cfg.Notifications.PushbulletAPIKey, a.logger)}
}

func (a *app) manager(opts ...core.Option) *core.Manager {
	base := []core.Option{core.WithNotifiers(a.notifiers()...)}
	if a.recorder != nil {
		base = append(base, core.WithRecorder(a.recorder))
	}
	return core.NewManager(a.cfg, planners.Default(a.cfg, a.logger), a.logger, a.errorLog, append(base, opts...)...)
}

// loadSeries returns the series list, narrowed to names when any are given.
func (a *app) loadSeries(names []string) ([]series.Descriptor, error) {
	list, err := a.repo.Load()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return list, nil
	}
	byName := make(map[string]series.Descriptor, len(list))
	for _, d := range list {
		byName[d.Name] = d
	}
	var out []series.Descriptor
	for _, name := range names {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown series %q", name)
		}
		out = append(out, d)
	}
	return out, nil
}

// acquireLock takes the data directory lock so only one process runs the
// pipeline against the same series directories.
func acquireLock(dataPath string) (func(), error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(dataPath, "anidl.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another anidl instance is already running against this data path")
	}
	return func() { _ = lock.Unlock() }, nil
}
