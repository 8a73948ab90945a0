// Command server runs the face capture and verification engine: the HTTP
// API, the capture session manager, and the audit worker. Dependency wiring
// happens here; domain logic lives in internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"faceledger/internal/audit"
	"faceledger/internal/face/capture"
	"faceledger/internal/face/detect"
	"faceledger/internal/face/extract"
	"faceledger/internal/face/handler"
	facemetrics "faceledger/internal/face/metrics"
	"faceledger/internal/face/match"
	"faceledger/internal/face/quality"
	"faceledger/internal/face/service"
	"faceledger/internal/face/store"
	"faceledger/internal/platform/config"
	"faceledger/internal/platform/httpserver"
	"faceledger/internal/platform/logger"
	"faceledger/internal/platform/metrics"
	"faceledger/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	platformMetrics := metrics.New()
	faceMetrics := facemetrics.New()

	// Persistence: postgres when DATABASE_URL is set, in-process otherwise.
	var embeddings store.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
		embeddings = store.NewPostgres(db)
		log.Info("using postgres embedding store")
	} else {
		embeddings = store.NewInMemory()
		log.Warn("DATABASE_URL not set, embeddings are not persisted")
	}

	// Camera leases: redis spans instances, memory covers one process.
	var leases capture.LeaseStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		leases = capture.NewRedisLeaseStore(redisClient.Client)
		log.Info("using redis camera leases")
	} else {
		leases = capture.NewInMemoryLeaseStore()
	}

	// The detector is an external capability. Only the simulated one ships,
	// and only behind its explicit flag; there is no silent fallback.
	var detector detect.Detector
	var opener capture.CameraOpener
	if cfg.Engine.SimulatedDetector {
		detector = detect.NewSimulated(log)
		opener = capture.CameraOpenerFunc(func(string) (capture.Camera, error) {
			return capture.NewSimulatedCamera(), nil
		})
	} else {
		detector = detect.NewUnready("no model runtime configured")
		opener = capture.CameraOpenerFunc(func(string) (capture.Camera, error) {
			return nil, errors.New("no camera backend configured")
		})
	}

	scorer := quality.NewScorer()
	extractor, err := extract.New(detector, scorer, extract.WithPadding(cfg.Engine.PaddingPx))
	if err != nil {
		return err
	}

	auditPublisher := audit.NewPublisher(256, log, audit.WithDropCounter(platformMetrics))
	auditWorker := audit.NewWorker(audit.NewInMemoryStore(), auditPublisher.Inbox(), log)

	engine, err := service.New(embeddings, match.New(),
		service.WithLogger(log),
		service.WithAudit(auditPublisher),
		service.WithMetrics(faceMetrics),
		service.WithDedupThreshold(cfg.Engine.DedupThreshold),
	)
	if err != nil {
		return err
	}

	manager, err := capture.NewManager(opener, detector, scorer, extractor, leases, capture.Config{
		StabilityThreshold: cfg.Engine.StabilityThreshold,
		QualityThreshold:   cfg.Engine.QualityThreshold,
		CaptureDelay:       cfg.Engine.CaptureDelay,
		TickInterval:       cfg.Engine.TickInterval,
	}, log, capture.WithManagerAudit(auditPublisher), capture.WithManagerMetrics(faceMetrics))
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	handler.New(engine, manager, log, platformMetrics).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting faceledger", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		manager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
