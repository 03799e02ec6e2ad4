package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	MaxUpload int64
}

type SecurityConfig struct {
	JWTSecret     string
	JWTTTL        time.Duration
	AdminSecret   string
	AdminTTL      time.Duration
	AdminPassword string
}

// ChatConfig drives the long-poll endpoint. PollMaxTimeout bounds the
// client-supplied timeout and must stay below HTTP.WriteTimeout.
type ChatConfig struct {
	PollTimeout    time.Duration
	PollInterval   time.Duration
	PollMaxTimeout time.Duration
	HistoryLimit   int
}

type PushConfig struct {
	Enabled         bool
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MaxLen        int64
}

type JobsConfig struct {
	ReconcileSchedule string
	SweepSchedule     string
}

// WorkerConfig covers the worker process. An empty MetricsAddr disables
// its metrics listener.
type WorkerConfig struct {
	MetricsAddr string
}

type WordsConfig struct {
	Defaults []string
}

type SiteConfig struct {
	PublicBaseURL string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Mongo            MongoConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Chat             ChatConfig
	Push             PushConfig
	Queue            QueueConfig
	Jobs             JobsConfig
	Worker           WorkerConfig
	Words            WordsConfig
	Site             SiteConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("ANTIMAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations that would break the service at runtime.
func (c *AppConfig) Validate() error {
	if c.Chat.PollInterval <= 0 {
		return fmt.Errorf("chat.pollinterval must be positive")
	}
	if c.Chat.PollTimeout < c.Chat.PollInterval {
		return fmt.Errorf("chat.polltimeout must not be shorter than chat.pollinterval")
	}
	if c.Chat.PollMaxTimeout < c.Chat.PollTimeout {
		c.Chat.PollMaxTimeout = c.Chat.PollTimeout
	}
	if c.HTTP.WriteTimeout > 0 && c.HTTP.WriteTimeout <= c.Chat.PollMaxTimeout {
		return fmt.Errorf("http.writetimeout (%s) must exceed chat.pollmaxtimeout (%s)", c.HTTP.WriteTimeout, c.Chat.PollMaxTimeout)
	}
	if c.Environment == "production" {
		if c.Security.JWTSecret == "" || c.Security.AdminSecret == "" {
			return fmt.Errorf("security.jwtsecret and security.adminsecret are required in production")
		}
		if c.Security.JWTSecret == c.Security.AdminSecret {
			return fmt.Errorf("security.adminsecret must differ from security.jwtsecret")
		}
	}
	return nil
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3001)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "75s") // long-poll holds responses open
	v.SetDefault("http.idletimeout", "90s")

	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "antimat")
	v.SetDefault("mongo.maxpoolsize", 50)
	v.SetDefault("mongo.connecttimeout", "10s")
	v.SetDefault("mongo.retrydelay", "5s")
	v.SetDefault("mongo.maxretries", 0)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "antimat-updates")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxupload", 500<<20)

	v.SetDefault("security.jwtttl", "720h") // 30 days
	v.SetDefault("security.adminttl", "168h")

	v.SetDefault("chat.polltimeout", "30s")
	v.SetDefault("chat.pollinterval", "1s")
	v.SetDefault("chat.pollmaxtimeout", "60s")
	v.SetDefault("chat.historylimit", 50)

	v.SetDefault("push.enabled", false)

	v.SetDefault("queue.stream", "antimat:jobs")
	v.SetDefault("queue.group", "antimat-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "30s")
	v.SetDefault("queue.maxlen", 100000)

	v.SetDefault("jobs.reconcileschedule", "0 30 3 * * *")
	v.SetDefault("jobs.sweepschedule", "0 0 */1 * * *")

	v.SetDefault("worker.metricsaddr", ":9101")

	v.SetDefault("words.defaults", []string{"сука", "блять", "хуй", "пизда", "ебать"})

	v.SetDefault("site.publicbaseurl", "http://localhost:3001")

	v.SetDefault("logging.level", "info")
	v.SetDefault("allowcorsorigins", []string{})

	// Secrets have no sensible default but must be known keys so that
	// ANTIMAT_* environment variables reach Unmarshal.
	for _, key := range []string{
		"redis.password",
		"storage.endpoint",
		"storage.accesskey",
		"storage.secretkey",
		"security.jwtsecret",
		"security.adminsecret",
		"security.adminpassword",
		"push.projectid",
		"push.credentialsfile",
		"push.credentialsjson",
	} {
		v.SetDefault(key, "")
	}
}
