package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/config"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/newthinker/arena/internal/notifier"
	"github.com/newthinker/arena/internal/notifier/telegram"
	"github.com/newthinker/arena/internal/notifier/webhook"
	"github.com/newthinker/arena/internal/storage/archive"
	"github.com/newthinker/arena/internal/storage/result"
	"go.uber.org/zap"
)

// Build creates an Arena with the storage and notifiers described by cfg.
// The returned cleanup releases connections opened here and should run
// after Arena.Close.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Registry) (*Arena, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanup := func() {}

	opts := []Option{WithLogger(logger), WithMetrics(m)}

	if dsn := cfg.Storage.Postgres.DSN; dsn != "" {
		store, err := result.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("result store: %w", err)
		}
		cleanup = store.Close
		opts = append(opts, WithResultStore(store))
		logger.Info("result store ready", zap.String("type", "postgres"))
	}

	storage, err := newArchive(cfg.Storage.Archive)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("archive: %w", err)
	}
	if storage != nil {
		opts = append(opts, WithArchive(storage))
		logger.Info("result archive ready", zap.String("type", cfg.Storage.Archive.Type))
	}

	notifiers, err := newNotifiers(cfg.Notifiers, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	opts = append(opts, WithNotifiers(notifiers), WithAlerts(cfg.Alerts))

	return New(cfg, opts...), cleanup, nil
}

func newArchive(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// newNotifiers registers every enabled notifier, each restricted to its
// configured events. The registry watches their union.
func newNotifiers(cfgs map[string]config.NotifierConfig, logger *zap.Logger) (*notifier.Registry, error) {
	reg := notifier.NewRegistry(logger)

	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	watched := make(map[competition.EventType]bool)
	for _, name := range names {
		nc := cfgs[name]
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "telegram":
			n = &telegram.Telegram{}
			params["bot_token"] = nc.BotToken
			params["chat_id"] = nc.ChatID
			if nc.URL != "" {
				params["base_url"] = nc.URL
			}
		case "webhook":
			n = &webhook.Webhook{}
			params["url"] = nc.URL
			params["headers"] = nc.Headers
		default:
			logger.Warn("unknown notifier ignored", zap.String("notifier", name))
			continue
		}
		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return nil, fmt.Errorf("notifier %s: %w", name, err)
		}

		types := notifier.DefaultEvents
		if len(nc.Events) > 0 {
			types = make([]competition.EventType, len(nc.Events))
			for i, ev := range nc.Events {
				types[i] = competition.EventType(ev)
			}
		}
		for _, t := range types {
			watched[t] = true
		}

		if err := reg.Register(notifier.WithEvents(n, types...)); err != nil {
			return nil, err
		}
		logger.Info("notifier registered", zap.String("notifier", name))
	}

	if len(watched) > 0 {
		types := make([]competition.EventType, 0, len(watched))
		for t := range watched {
			types = append(types, t)
		}
		reg.Watch(types...)
	}
	return reg, nil
}
