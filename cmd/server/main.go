package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/config"
	"github.com/iliyamo/seat-ticketing/internal/database"
	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/guard"
	"github.com/iliyamo/seat-ticketing/internal/handler"
	"github.com/iliyamo/seat-ticketing/internal/ledger"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
	"github.com/iliyamo/seat-ticketing/internal/middleware"
	"github.com/iliyamo/seat-ticketing/internal/orderclient"
	"github.com/iliyamo/seat-ticketing/internal/queue"
	"github.com/iliyamo/seat-ticketing/internal/repository"
	"github.com/iliyamo/seat-ticketing/internal/router"
	"github.com/iliyamo/seat-ticketing/internal/service"
)

func main() {
	cfg := config.Load()
	cfg.RequireServer()
	logx.MustSetup(cfg.Log)
	defer logx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DB.User, Pass: cfg.DB.Pass, Host: cfg.DB.Host, Port: cfg.DB.Port, Name: cfg.DB.Name,
	})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()
	// RabbitMQ is dialled once and shared when both submission and
	// cancellation use it.
	var amqpConn *amqp.Connection
	rabbit := func() *amqp.Connection {
		if amqpConn == nil {
			conn, err := queue.Dial(ctx, cfg.RabbitMQ.URL)
			if err != nil {
				log.Fatalf("rabbitmq: %v", err)
			}
			amqpConn = conn
			closers = append(closers, conn)
		}
		return amqpConn
	}

	namer := lockkey.Namer{Prefix: cfg.LockPrefix}
	locker := distlock.NewRedisLocker(rdb, distlock.WithPollInterval(cfg.Lock.Poll))
	catalogRepo := repository.NewCatalogRepo(db)
	inventory := ledger.New(rdb, locker, catalogRepo, namer,
		ledger.WithKeyPrefix(cfg.LockPrefix+":"),
		ledger.WithLoadWait(cfg.Lock.Wait))
	catalog, err := service.NewCachedCatalog(catalogRepo, cfg.Catalog.TTL, cfg.Catalog.Limit)
	if err != nil {
		log.Fatalf("catalog cache: %v", err)
	}

	var submitter service.Submitter
	switch cfg.Submit.Mode {
	case config.SubmitKafka:
		pub := queue.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, pub)
		submitter = service.NewAsyncSubmitter(pub, cfg.Submit.Wait)
	case config.SubmitRabbitMQ:
		pub, err := queue.NewRabbitPublisher(rabbit(), cfg.RabbitMQ.CreateQueue, cfg.RabbitMQ.ConfirmTimeout)
		if err != nil {
			log.Fatalf("rabbitmq publisher: %v", err)
		}
		closers = append(closers, pub)
		submitter = service.NewAsyncSubmitter(pub, cfg.Submit.Wait)
	default:
		submitter = service.NewSyncSubmitter(orderclient.New(cfg.OrderService.URL, cfg.OrderService.Timeout))
	}

	var cancels service.CancelScheduler
	switch cfg.Cancel.Scheduler {
	case config.CancelAsynq:
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Cancel.AsynqAddr, DB: cfg.Cancel.AsynqDB})
		closers = append(closers, client)
		cancels = queue.NewAsynqCancelScheduler(client, "")
	default:
		s, err := queue.NewRabbitCancelScheduler(rabbit(), cfg.RabbitMQ.DelayQueue, cfg.RabbitMQ.CancelQueue)
		if err != nil {
			log.Fatalf("rabbitmq cancel scheduler: %v", err)
		}
		closers = append(closers, s)
		cancels = s
	}

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		log.Fatalf("snowflake: %v", err)
	}
	svc := service.NewProgramOrderService(catalog, inventory, submitter, cancels, node, service.Options{
		CancelDelay: cfg.Cancel.Delay,
	})

	deps := guard.Deps{
		Locker: locker,
		Local:  locallock.NewRegistry(),
		Flags:  guard.NewRedisFlagStore(rdb, cfg.LockPrefix+":"),
		Namer:  namer,
	}
	multi := guard.NewMultiLock(deps.Local, locker, cfg.Lock.Wait, cfg.Lock.Lease)
	entry, err := service.NewOrderEntry(deps, multi, svc, service.EntryOptions{
		RepeatHold:  cfg.RepeatHold,
		RepeatLease: cfg.Lock.Lease,
	})
	if err != nil {
		log.Fatalf("order entry: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	router.RegisterRoutes(e, handler.NewHealth(map[string]handler.Check{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))
	router.RegisterOrders(e, handler.NewProgramOrderHandler(entry), cfg.JWTSecret, middleware.TokenBucket(cfg.RateLimit, rdb))
	refresher := service.NewProgramRefresher(catalogRepo, catalog, inventory)
	router.RegisterAdmin(e, handler.NewProgramAdminHandler(refresher.Refresh), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logx.Infof("listening on %s (env=%s, submit=%s, cancel=%s)", addr, cfg.Env, cfg.Submit.Mode, cfg.Cancel.Scheduler)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logx.Errorf("http shutdown: %v", err)
	}
}
