package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	PublicURL      string
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketExport string
	UseSSL       bool
	Region       string
	PresignTTL   time.Duration
}

type SecurityConfig struct {
	AdminSessionTTL time.Duration
	ChallengeSecret string
	ChallengeTTL    time.Duration
	TOTPIssuer      string
	TOTPSkew        uint
	RelaySecret     string
	RelayClientID   string
}

type RateLimitConfig struct {
	Backend     string
	Max         int
	Window      time.Duration
	KeyStrategy string
	StaticKey   string
}

type SubmissionConfig struct {
	MinInterval   time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
}

type TrackingConfig struct {
	Enabled        bool
	PixelID        string
	AccessToken    string
	GraphBaseURL   string
	GraphVersion   string
	TestEventCode  string
	DedupeTTL      time.Duration
	RequestTimeout time.Duration
}

type EmailConfig struct {
	ResendAPIKey  string
	From          string
	FromName      string
	OperatorEmail string
	AdminURL      string
}

type WorkerConfig struct {
	ClaimInterval time.Duration
	MaxDeliveries int64
	LogLevel      string
}

type SessionsConfig struct {
	InactivityTimeout time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	RateLimit        RateLimitConfig
	Submission       SubmissionConfig
	Tracking         TrackingConfig
	Email            EmailConfig
	Worker           WorkerConfig
	Sessions         SessionsConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("GRANTLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Environment != "production" {
		return nil
	}
	var missing []string
	if c.Postgres.DSN == "" {
		missing = append(missing, "postgres.dsn")
	}
	if c.Security.ChallengeSecret == "" {
		missing = append(missing, "security.challengesecret")
	}
	if c.Security.RelaySecret == "" {
		missing = append(missing, "security.relaysecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.publicurl", "http://localhost:8080")
	v.SetDefault("http.trustedproxies", []string{})

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "leads:tasks")
	v.SetDefault("redis.group", "lead-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.deadletterstream", "leads:tasks:dead")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketexport", "lead-exports")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "eu-west-2")
	v.SetDefault("storage.presignttl", "15m")

	v.SetDefault("security.adminsessionttl", "4h")
	v.SetDefault("security.challengesecret", "")
	v.SetDefault("security.challengettl", "5m")
	v.SetDefault("security.totpissuer", "Grant Leads Admin")
	v.SetDefault("security.totpskew", 1)
	v.SetDefault("security.relaysecret", "")
	v.SetDefault("security.relayclientid", "site")

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.max", 5)
	v.SetDefault("ratelimit.window", "15m")
	v.SetDefault("ratelimit.keystrategy", "static")
	v.SetDefault("ratelimit.statickey", "form_submission")

	v.SetDefault("submission.mininterval", "2s")
	v.SetDefault("submission.maxattempts", 5)
	v.SetDefault("submission.attemptwindow", "1h")

	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.pixelid", "")
	v.SetDefault("tracking.accesstoken", "")
	v.SetDefault("tracking.graphbaseurl", "https://graph.facebook.com")
	v.SetDefault("tracking.graphversion", "v19.0")
	v.SetDefault("tracking.testeventcode", "")
	v.SetDefault("tracking.dedupettl", "48h")
	v.SetDefault("tracking.requesttimeout", "10s")

	v.SetDefault("email.resendapikey", "")
	v.SetDefault("email.from", "noreply@example.com")
	v.SetDefault("email.fromname", "Grant Leads")
	v.SetDefault("email.operatoremail", "")
	v.SetDefault("email.adminurl", "")

	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.maxdeliveries", 5)
	v.SetDefault("worker.loglevel", "info")

	v.SetDefault("sessions.inactivitytimeout", "30m")

	v.SetDefault("allowcorsorigins", []string{})
}
