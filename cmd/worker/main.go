package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/config"
	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/guard"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
	"github.com/iliyamo/seat-ticketing/internal/orderclient"
	"github.com/iliyamo/seat-ticketing/internal/queue"
	"github.com/iliyamo/seat-ticketing/internal/service"
)

// The worker cancels orders left unpaid past the payment window.
func main() {
	cfg := config.Load()
	logx.MustSetup(cfg.Log)
	defer logx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	deps := guard.Deps{
		Locker: distlock.NewRedisLocker(rdb, distlock.WithPollInterval(cfg.Lock.Poll)),
		Local:  locallock.NewRegistry(),
		Flags:  guard.NewRedisFlagStore(rdb, cfg.LockPrefix+":"),
		Namer:  lockkey.Namer{Prefix: cfg.LockPrefix},
	}
	handle, err := service.NewCancelHandler(deps, orderclient.New(cfg.OrderService.URL, cfg.OrderService.Timeout), 0)
	if err != nil {
		log.Fatalf("cancel handler: %v", err)
	}

	switch cfg.Cancel.Scheduler {
	case config.CancelAsynq:
		srv := asynq.NewServer(
			asynq.RedisClientOpt{Addr: cfg.Cancel.AsynqAddr, DB: cfg.Cancel.AsynqDB},
			asynq.Config{Concurrency: 10, BaseContext: func() context.Context { return ctx }},
		)
		if err := srv.Start(queue.NewCancelMux(handle)); err != nil {
			log.Fatalf("asynq: %v", err)
		}
		logx.Infof("cancel worker consuming asynq %s", queue.TaskOrderCancel)
		<-ctx.Done()
		srv.Shutdown()
	default:
		logx.Infof("cancel worker consuming rabbitmq %s", cfg.RabbitMQ.CancelQueue)
		err := queue.StartCancelConsumer(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.DelayQueue, cfg.RabbitMQ.CancelQueue, handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("cancel consumer: %v", err)
		}
	}
}
