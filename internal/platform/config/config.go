package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	LogLevel        string
	Postgres        PostgresConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	Token           TokenConfig
	OTP             OTPConfig
	AccountNumber   AccountNumberConfig
	RateLimit       RateLimitConfig
}

// PostgresConfig configures the application and OTP stores. An empty URL
// selects the in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig configures the shared rate-limit and refresh-token stores.
// An empty URL selects the in-memory stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the event publisher. No brokers selects the
// in-memory publisher.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type TokenConfig struct {
	Secret               string
	Issuer               string
	ApplicantTTL         time.Duration
	ComplianceOfficerTTL time.Duration
	AdminTTL             time.Duration
	RefreshTTL           time.Duration
}

type OTPConfig struct {
	Length      int
	Validity    time.Duration
	BcryptCost  int
	MaxAttempts int
}

type AccountNumberConfig struct {
	CountryCode string
	BankCode    string
}

// RateLimitConfig holds the per-operation limits applied at the HTTP boundary.
type RateLimitConfig struct {
	Enabled        bool
	CreateByIP     Limit
	OTPSendByIP    Limit
	OTPVerifyByIP  Limit
	OTPVerifyByApp Limit
	DocumentsByApp Limit
}

// Limit is a request cap within a fixed window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	e := &envReader{}
	cfg := Server{
		Addr:            e.str("ONBOARDING_ADDR", ":8080"),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrateOnStart:  e.bool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  e.list("KAFKA_BROKERS"),
			Topic:    e.str("KAFKA_TOPIC", "onboarding.application-events"),
			ClientID: e.str("KAFKA_CLIENT_ID", "onboarding"),
		},
		Token: TokenConfig{
			// Development default; production deployments must override it.
			Secret:               e.str("TOKEN_SECRET", "dev-secret-key-change-in-production"),
			Issuer:               e.str("TOKEN_ISSUER", "onboarding"),
			ApplicantTTL:         e.duration("TOKEN_APPLICANT_TTL", 30*time.Minute),
			ComplianceOfficerTTL: e.duration("TOKEN_COMPLIANCE_OFFICER_TTL", 8*time.Hour),
			AdminTTL:             e.duration("TOKEN_ADMIN_TTL", time.Hour),
			RefreshTTL:           e.duration("TOKEN_REFRESH_TTL", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			Length:      e.int("OTP_LENGTH", 6),
			Validity:    e.duration("OTP_VALIDITY", 10*time.Minute),
			BcryptCost:  e.int("OTP_BCRYPT_COST", 10),
			MaxAttempts: e.int("OTP_MAX_ATTEMPTS", 5),
		},
		AccountNumber: AccountNumberConfig{
			CountryCode: strings.ToUpper(e.str("ACCOUNT_COUNTRY_CODE", "NL")),
			BankCode:    strings.ToUpper(e.str("ACCOUNT_BANK_CODE", "ABCB")),
		},
		RateLimit: RateLimitConfig{
			Enabled:        !e.bool("DISABLE_RATE_LIMITING", false),
			CreateByIP:     e.limit("RATELIMIT_CREATE_IP", Limit{5, time.Hour}),
			OTPSendByIP:    e.limit("RATELIMIT_OTP_SEND_IP", Limit{10, time.Hour}),
			OTPVerifyByIP:  e.limit("RATELIMIT_OTP_VERIFY_IP", Limit{20, time.Hour}),
			OTPVerifyByApp: e.limit("RATELIMIT_OTP_VERIFY_APP", Limit{5, 15 * time.Minute}),
			DocumentsByApp: e.limit("RATELIMIT_DOCUMENTS_APP", Limit{20, time.Hour}),
		},
	}
	if e.err != nil {
		return Server{}, e.err
	}
	return cfg, nil
}

// envReader records the first parse failure so FromEnv reports one error.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// limit parses "<requests>/<window>", e.g. "5/1h".
func (e *envReader) limit(key string, def Limit) Limit {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	reqs, window, ok := strings.Cut(v, "/")
	if !ok {
		e.fail(key, fmt.Errorf("want <requests>/<window>, got %q", v))
		return def
	}
	n, err := strconv.Atoi(reqs)
	if err != nil || n <= 0 {
		e.fail(key, fmt.Errorf("invalid request count %q", reqs))
		return def
	}
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		e.fail(key, fmt.Errorf("invalid window %q", window))
		return def
	}
	return Limit{Requests: n, Window: d}
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config %s: %w", key, err)
	}
}
