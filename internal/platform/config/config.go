package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "raceday/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr              string
	DatabaseURL       string
	RedisURL          string
	KafkaBrokers      []string
	AuditTopic        string
	EmailTopic        string
	JWTSigningKey     string
	JWTIssuer         string
	JWTAudience       string
	InviteTokenPepper string
	InviteTTL         time.Duration
	PaymentsEnabled   bool
	SystemBuyerEmail  string
	HoldSweepInterval time.Duration
	HoldPolicyFile    string
	TxTimeout         time.Duration
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	LogLevel          string
	LogFormat         string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory, when present, seeds variables that are not
// already set.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:              getenv("RACEDAY_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		KafkaBrokers:      platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:        getenv("AUDIT_TOPIC", "raceday.audit"),
		EmailTopic:        getenv("EMAIL_TOPIC", "raceday.email"),
		JWTSigningKey:     os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:         getenv("JWT_ISSUER", "raceday-auth"),
		JWTAudience:       getenv("JWT_AUDIENCE", "raceday-api"),
		InviteTokenPepper: os.Getenv("INVITE_TOKEN_PEPPER"),
		SystemBuyerEmail:  getenv("SYSTEM_BUYER_EMAIL", "group-registrations@system.raceday.local"),
		HoldPolicyFile:    os.Getenv("HOLD_POLICY_FILE"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.PaymentsEnabled, err = getbool("PAYMENTS_ENABLED", false); err != nil {
		return Server{}, err
	}
	if cfg.HoldSweepInterval, err = getduration("HOLD_SWEEP_INTERVAL", 0); err != nil {
		return Server{}, err
	}
	if cfg.InviteTTL, err = getduration("INVITE_TTL", 14*24*time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.TxTimeout, err = getduration("TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	// Zero keeps the server defaults.
	if cfg.HTTPReadTimeout, err = getduration("HTTP_READ_TIMEOUT", 0); err != nil {
		return Server{}, err
	}
	if cfg.HTTPWriteTimeout, err = getduration("HTTP_WRITE_TIMEOUT", 0); err != nil {
		return Server{}, err
	}
	if cfg.HTTPIdleTimeout, err = getduration("HTTP_IDLE_TIMEOUT", 0); err != nil {
		return Server{}, err
	}

	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if cfg.InviteTokenPepper == "" {
		cfg.InviteTokenPepper = "dev-invite-pepper-change-in-production"
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
