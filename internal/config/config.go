package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type App struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	BodyLimitBytes         int    `mapstructure:"body_limit_bytes"`
}

func (a App) PortString() string { return fmt.Sprintf("%d", a.Port) }

type Store struct {
	Driver string `mapstructure:"driver"` // mongo | memory
}

type Mongo struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Kafka struct {
	Brokers              []string `mapstructure:"brokers"`
	TopicEvents          string   `mapstructure:"topic_events"`
	TopicNotifications   string   `mapstructure:"topic_notifications"`
	TopicDeadLetters     string   `mapstructure:"topic_dead_letters"`
	GroupID              string   `mapstructure:"group_id"`
	TriggerMaxRetries    int      `mapstructure:"trigger_max_retries"`
	TriggerBackoffMillis int      `mapstructure:"trigger_backoff_ms"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type JWT struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type WS struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	RatePerSecond        float64 `mapstructure:"rate_per_second"`
	RateBurst            int     `mapstructure:"rate_burst"`
}

type S3 struct {
	Enabled           bool   `mapstructure:"enabled"`
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Endpoint          string `mapstructure:"endpoint"`
	PublicRead        bool   `mapstructure:"public_read"`
	PresignTTLSeconds int    `mapstructure:"presign_ttl_seconds"`
	KeyPrefix         string `mapstructure:"key_prefix"`
	MaxUploadBytes    int    `mapstructure:"max_upload_bytes"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	App   App   `mapstructure:"app"`
	Store Store `mapstructure:"store"`
	Mongo Mongo `mapstructure:"mongo"`
	Redis Redis `mapstructure:"redis"`
	Kafka Kafka `mapstructure:"kafka"`
	JWT   JWT   `mapstructure:"jwt"`
	WS    WS    `mapstructure:"ws"`
	S3    S3    `mapstructure:"s3"`
	Log   Log   `mapstructure:"log"`

	// derived
	ShutdownTimeout time.Duration `mapstructure:"-"`
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	PresignTTL      time.Duration `mapstructure:"-"`
	TriggerBackoff  time.Duration `mapstructure:"-"`
}

func (c *Config) Development() bool { return strings.EqualFold(c.App.Env, "development") }

// Load reads .env, then the YAML file at path (optional), then environment
// overrides such as MONGO_URI or KAFKA_BROKERS.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range v.AllKeys() {
		_ = v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ShutdownTimeout = time.Duration(cfg.App.ShutdownTimeoutSeconds) * time.Second
	cfg.PingInterval = time.Duration(cfg.WS.PingIntervalSeconds) * time.Second
	cfg.WriteDeadline = time.Duration(cfg.WS.WriteDeadlineSeconds) * time.Second
	cfg.PresignTTL = time.Duration(cfg.S3.PresignTTLSeconds) * time.Second
	cfg.TriggerBackoff = time.Duration(cfg.Kafka.TriggerBackoffMillis) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout_seconds", 10)
	v.SetDefault("app.body_limit_bytes", 16<<20)
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db", "realtime")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_events", "chat-events")
	v.SetDefault("kafka.topic_notifications", "notification-events")
	v.SetDefault("kafka.topic_dead_letters", "notification-events-dlq")
	v.SetDefault("kafka.group_id", "realtime-service")
	v.SetDefault("kafka.trigger_max_retries", 3)
	v.SetDefault("kafka.trigger_backoff_ms", 200)
	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.rate_per_second", 10)
	v.SetDefault("ws.rate_burst", 20)
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_read", false)
	v.SetDefault("s3.presign_ttl_seconds", 86400)
	v.SetDefault("s3.key_prefix", "")
	v.SetDefault("s3.max_upload_bytes", 10<<20)
	v.SetDefault("log.level", "info")
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri required for store.driver=mongo")
		}
		if c.Mongo.DB == "" {
			return errors.New("mongo.db missing")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver %q (use mongo or memory)", c.Store.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr missing")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return errors.New("s3.bucket required when s3.enabled")
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}
	return nil
}
