package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"onboarding/internal/accountnumber"
	"onboarding/internal/application/duplicate"
	appstore "onboarding/internal/application/store"
	"onboarding/internal/events"
	"onboarding/internal/onboarding"
	"onboarding/internal/otp"
	otpstore "onboarding/internal/otp/store"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/kafka"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/platform/postgres"
	"onboarding/internal/platform/redis"
	"onboarding/internal/ratelimit"
	rlmetrics "onboarding/internal/ratelimit/metrics"
	rlmw "onboarding/internal/ratelimit/middleware"
	"onboarding/internal/ratelimit/ports"
	"onboarding/internal/ratelimit/store/bucket"
	"onboarding/internal/token"
	tokenstore "onboarding/internal/token/store"
	httptransport "onboarding/internal/transport/http"
)

const (
	topicPartitions  = 6
	topicReplication = 1
	// consecutive backend failures before the rate limiter falls back to
	// per-instance buckets, and successes before it returns.
	fallbackFailures  = 3
	fallbackSuccesses = 2
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// applicationStore is what both store implementations offer: the
// repository and the lookups the duplicate detector runs.
type applicationStore interface {
	onboarding.ApplicationStore
	duplicate.Lookup
}

// infra holds the optional backends and how to release them.
type infra struct {
	db        *sql.DB
	redis     *redis.Client
	publisher events.Publisher
	closers   []func() error
	checks    map[string]func(context.Context) error
}

func (i *infra) close(log *slog.Logger) {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			log.Warn("failed to release resource", "error", err)
		}
	}
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{checks: map[string]func(context.Context) error{}}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return in, err
	}
	if db != nil {
		in.db = db
		in.closers = append(in.closers, db.Close)
		in.checks["postgres"] = db.PingContext
		if cfg.Postgres.MigrateOnStart {
			if err := postgres.Migrate(cfg.Postgres.URL); err != nil {
				return in, err
			}
		}
		log.Info("using postgres stores")
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return in, err
	}
	if rc != nil {
		in.redis = rc
		in.closers = append(in.closers, rc.Close)
		in.checks["redis"] = rc.Health
		log.Info("using redis for rate limits and refresh tokens")
	}

	producer, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return in, err
	}
	if producer == nil {
		in.publisher = events.NewRecorder()
		log.Warn("KAFKA_BROKERS not set, domain events are kept in memory")
		return in, nil
	}
	in.closers = append(in.closers, func() error {
		producer.Close()
		return nil
	})
	in.checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, producer) }
	if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.Topic, topicPartitions, topicReplication); err != nil {
		return in, err
	}
	pub, err := events.NewKafkaPublisher(producer, cfg.Kafka.Topic, events.WithLogger(log))
	if err != nil {
		return in, err
	}
	in.publisher = pub
	in.closers = append(in.closers, func() error { return pub.Close(cfg.ShutdownTimeout) })
	return in, nil
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	in, err := connect(ctx, cfg, log)
	defer in.close(log)
	if err != nil {
		return err
	}

	m := metrics.New()

	var (
		apps          applicationStore             = appstore.NewInMemory()
		verifications onboarding.VerificationStore = otpstore.NewInMemory()
	)
	if in.db != nil {
		apps = appstore.NewPostgres(in.db)
		verifications = otpstore.NewPostgres(in.db)
	}
	detector, err := duplicate.New(apps, duplicate.WithLogger(log))
	if err != nil {
		return err
	}

	hasher, err := otp.NewBcryptHasher(cfg.OTP.BcryptCost)
	if err != nil {
		return err
	}
	codes, err := otp.New(hasher,
		otp.WithLength(cfg.OTP.Length),
		otp.WithValidity(cfg.OTP.Validity),
		otp.WithLogger(log),
	)
	if err != nil {
		return err
	}

	tokens, err := token.New(cfg.Token.Secret, cfg.Token.Issuer,
		token.WithTTL(token.RoleApplicant, cfg.Token.ApplicantTTL),
		token.WithTTL(token.RoleComplianceOfficer, cfg.Token.ComplianceOfficerTTL),
		token.WithTTL(token.RoleAdmin, cfg.Token.AdminTTL),
		token.WithRandom(rand.Reader),
		token.WithLogger(log),
		token.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	var refreshStore token.RefreshStore = tokenstore.NewInMemory()
	if in.redis != nil {
		refreshStore = tokenstore.NewRedis(in.redis.Client)
	}
	sessions, err := token.NewSessions(tokens, refreshStore, cfg.Token.RefreshTTL)
	if err != nil {
		return err
	}

	accounts, err := accountnumber.New(cfg.AccountNumber.CountryCode, cfg.AccountNumber.BankCode,
		accountnumber.WithLogger(log),
		accountnumber.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	svc, err := onboarding.New(onboarding.Deps{
		Applications:   apps,
		Duplicates:     detector,
		Verifications:  verifications,
		Codes:          codes,
		Notifier:       otp.NewLogNotifier(log),
		Sessions:       sessions,
		AccountNumbers: accounts,
		Events:         in.publisher,
	},
		onboarding.WithLogger(log),
		onboarding.WithMetrics(m),
		onboarding.WithMaxOTPAttempts(cfg.OTP.MaxAttempts),
	)
	if err != nil {
		return err
	}

	rateLimit, err := newRateLimit(cfg.RateLimit, in.redis, log)
	if err != nil {
		return err
	}

	handler, err := httptransport.NewHandler(svc, sessions, httptransport.WithLogger(log))
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:       handler,
		Authenticator: tokens,
		RateLimit:     rateLimit,
		Metrics:       promhttp.Handler(),
		Logger:        log,
		Readiness:     in.checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting onboarding server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRateLimit builds the policy middleware. With Redis configured, buckets
// are shared across instances and an in-memory limiter takes over while Redis
// is failing.
func newRateLimit(cfg config.RateLimitConfig, rc *redis.Client, log *slog.Logger) (func(http.Handler) http.Handler, error) {
	rm := rlmetrics.New()
	limiterFor := func(buckets ports.BucketStore) (*ratelimit.Service, error) {
		return ratelimit.New(buckets, ratelimit.WithLogger(log), ratelimit.WithMetrics(rm))
	}

	local, err := limiterFor(bucket.NewInMemoryBucketStore())
	if err != nil {
		return nil, err
	}
	opts := []rlmw.Option{
		rlmw.WithDisabled(!cfg.Enabled),
		rlmw.WithLogger(log),
	}
	limiter := local
	if rc != nil {
		shared, err := limiterFor(bucket.NewRedisBucketStore(rc.Client))
		if err != nil {
			return nil, err
		}
		limiter = shared
		opts = append(opts, rlmw.WithFallback(local, fallbackFailures, fallbackSuccesses))
	}

	mw, err := rlmw.New(limiter, httptransport.RateLimitPolicies(cfg), opts...)
	if err != nil {
		return nil, err
	}
	return mw.Handler, nil
}
