package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mandir-erp/mandir-ledger/cmd/ledgerctl/cli"
	"github.com/mandir-erp/mandir-ledger/internal/app"
	"github.com/mandir-erp/mandir-ledger/internal/platform/cache"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var root cli.CLI
	kctx := kong.Parse(&root,
		kong.Name("ledgerctl"),
		kong.Description("Operator commands for the temple ledger."),
		kong.UsageOnError(),
	)

	cfg, err := app.LoadConfig()
	kctx.FatalIfErrorf(err)
	logger := app.NewLogger(cfg)

	b := &backend{cfg: cfg, logger: logger}
	defer b.Close()

	err = kctx.Run(&cli.Runtime{Ctx: ctx, Out: os.Stdout, Backend: b}, &root.Globals)
	kctx.FatalIfErrorf(err)
}

// backend connects lazily so queue commands never need Postgres.
type backend struct {
	cfg    *app.Config
	logger *slog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	svc   *app.Services
	queue *cli.JobsCLI
}

func (b *backend) services(ctx context.Context) (*app.Services, error) {
	if b.svc != nil {
		return b.svc, nil
	}
	pool, err := db.New(ctx, db.PoolConfig{DSN: b.cfg.PGDSN, MaxConns: 4, ApplicationName: "ledgerctl"})
	if err != nil {
		return nil, err
	}
	b.pool = pool
	client, err := cache.New(ctx, b.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	b.redis = client
	svc, err := app.NewServices(ctx, b.cfg, pool, client, b.logger, nil)
	if err != nil {
		return nil, err
	}
	b.svc = svc
	return svc, nil
}

func (b *backend) Migrations(ctx context.Context) (cli.Migrations, error) {
	svc, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Migrator, nil
}

func (b *backend) Years(ctx context.Context) (cli.Years, error) {
	svc, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Periods, nil
}

func (b *backend) Sessions(ctx context.Context) (cli.Sessions, error) {
	svc, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Sessions, nil
}

func (b *backend) Queue(context.Context) (cli.Queue, error) {
	if b.queue == nil {
		q, err := cli.NewJobsCLI(b.cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.queue = q
	}
	return b.queue, nil
}

func (b *backend) Close() {
	if b.queue != nil {
		if err := b.queue.Close(); err != nil {
			b.logger.Warn("close queue", slog.Any("error", err))
		}
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
