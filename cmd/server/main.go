// The registry server wires the HTTP API, the background workers and their
// backing services: Postgres for state, Kafka for the notification and
// search-feed queues, Redis for the emailer's schedule and dedupe cache,
// Solr for conflict search.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"namereg/internal/deploy"
	deployhandler "namereg/internal/deploy/handler"
	"namereg/internal/emailer"
	eventhandler "namereg/internal/event/handler"
	eventmetrics "namereg/internal/event/metrics"
	eventservice "namereg/internal/event/service"
	eventstore "namereg/internal/event/store"
	"namereg/internal/jwttoken"
	nrhandler "namereg/internal/namerequest/handler"
	nrmetrics "namereg/internal/namerequest/metrics"
	nrmodels "namereg/internal/namerequest/models"
	nrservice "namereg/internal/namerequest/service"
	nrstore "namereg/internal/namerequest/store"
	payhandler "namereg/internal/paymentsociety/handler"
	payservice "namereg/internal/paymentsociety/service"
	paystore "namereg/internal/paymentsociety/store"
	"namereg/internal/platform/config"
	"namereg/internal/platform/database"
	"namereg/internal/platform/httpserver"
	"namereg/internal/platform/logger"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/redis"
	"namereg/internal/queue"
	"namereg/internal/search/feeder"
	searchhandler "namereg/internal/search/handler"
	"namereg/internal/search/solr"
	userhandler "namereg/internal/user/handler"
	userservice "namereg/internal/user/service"
	userstore "namereg/internal/user/store"
)

// storeRequests adapts the request store for the workers, which look
// requests up by already-normalized numbers.
type storeRequests struct {
	st nrstore.RequestStore
}

func (s storeRequests) Get(ctx context.Context, nrNum string) (*nrmodels.Request, error) {
	return s.st.GetByNRNum(ctx, nrNum)
}

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := deploy.FromConfig(cfg.Deploy)
	if err := pipeline.Validate(); err != nil {
		return fmt.Errorf("deploy pipeline misconfigured: %w", err)
	}

	db, err := database.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Warn("redis not configured, deferred notifications and dedupe disabled")
	}

	publisher, err := queue.NewPublisher(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	platformMetrics := metrics.New()
	jwtValidator := jwttoken.New(cfg.Auth)

	requestStore := nrstore.NewPostgres(db)
	requestMetrics := nrmetrics.New()

	eventSvc := eventservice.New(eventstore.NewPostgres(db), publisher, log, eventmetrics.New())

	renderer, err := emailer.NewRenderer(cfg.Emailer)
	if err != nil {
		return err
	}
	processor := emailer.NewProcessor(storeRequests{requestStore}, renderer, &emailer.LogDeliverer{Logger: log}, log)

	var (
		scheduler   *emailer.Scheduler
		nrScheduler nrservice.Scheduler
		dedupe      goredis.Cmdable
	)
	if rdb != nil {
		scheduler = emailer.NewScheduler(rdb.Client, processor, cfg.Emailer.SchedulePollEvery, log)
		nrScheduler = scheduler
		dedupe = rdb.Client
	}

	requestSvc := nrservice.New(requestStore, eventSvc, publisher, nrScheduler,
		log, requestMetrics, cfg.Emailer.BeforeExpiryLeadDur)
	userSvc := userservice.New(userstore.NewPostgres(db), log)
	paySvc := payservice.New(paystore.NewPostgres(db), requestStore, eventSvc, publisher, log)

	solrClient := solr.New(cfg.Solr, log)
	indexFeeder := feeder.New(storeRequests{requestStore}, solrClient, log)
	mailWorker := emailer.NewWorker(processor, dedupe, cfg.Emailer.DedupeTTL, requestMetrics, log)

	mailConsumer, err := queue.NewConsumer(cfg.Kafka, cfg.Kafka.NotificationTopic, mailWorker.Handle, log)
	if err != nil {
		return err
	}
	feedConsumer, err := queue.NewConsumer(cfg.Kafka, cfg.Kafka.SearchFeedTopic, indexFeeder.Handle, log)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	nrhandler.New(requestSvc, log, platformMetrics, jwtValidator).Register(router)
	eventhandler.New(eventSvc, log, platformMetrics, jwtValidator).Register(router)
	userhandler.New(userSvc, log, platformMetrics, jwtValidator).Register(router)
	payhandler.New(paySvc, log, platformMetrics, jwtValidator).Register(router)
	searchhandler.New(solrClient, requestSvc, log, platformMetrics, jwtValidator).Register(router)
	deployhandler.New(pipeline, log, platformMetrics, jwtValidator).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting registry server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCancel(mailConsumer.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCancel(feedConsumer.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCancel(requestSvc.RunExpiryLoop(gctx, time.Hour))
	})
	if scheduler != nil {
		g.Go(func() error {
			return ignoreCancel(scheduler.Run(gctx))
		})
	}

	return ignoreCancel(g.Wait())
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
