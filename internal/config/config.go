package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/shaamilshan/hamme/pkg/config"
	"github.com/shaamilshan/hamme/pkg/pubsub"
	"github.com/shaamilshan/hamme/pkg/storage"
)

const (
	BackendSQL      = "sql"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Redis     RedisConfig
	Cache     CacheConfig
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	JWT       JWTConfig     `mapstructure:"jwt"`
	Storage   storage.Config
	Upload    UploadConfig
	CORS      CORSConfig `mapstructure:"cors"`
	Sweeper   SweeperConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// StoreConfig selects where votes and matches live. Users always live in
// the SQL database.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
}

type DynamoDBConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	VotesTable      string `mapstructure:"votes_table"`
	MatchesTable    string `mapstructure:"matches_table"`
	PairsTable      string `mapstructure:"pairs_table"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Issuer     string        `mapstructure:"issuer"`
}

type UploadConfig struct {
	MaxBytes int64         `mapstructure:"max_bytes"`
	URLTTL   time.Duration `mapstructure:"url_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "hamme")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/hamme.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("store.backend", BackendSQL)
	v.SetDefault("store.dynamodb.region", "us-east-1")
	v.SetDefault("store.dynamodb.votes_table", "hamme_votes")
	v.SetDefault("store.dynamodb.matches_table", "hamme_matches")
	v.SetDefault("store.dynamodb.pairs_table", "hamme_match_pairs")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "hamme")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("pubsub.driver", pubsub.DriverNone)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "hamme")
	v.SetDefault("pubsub.kafka.partitions", 3)
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")
	v.SetDefault("jwt.issuer", "hamme")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("storage.local.public_prefix", "/uploads")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("upload.max_bytes", 5<<20)
	v.SetDefault("upload.url_ttl", "168h")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "5m")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Bind environment variables
	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                      "PORT",
		"database.driver":                  "DB_DRIVER",
		"database.host":                    "DB_HOST",
		"database.port":                    "DB_PORT",
		"database.user":                    "DB_USER",
		"database.password":                "DB_PASSWORD",
		"database.dbname":                  "DB_NAME",
		"database.sslmode":                 "DB_SSLMODE",
		"database.file_path":               "DB_FILE_PATH",
		"database.log_level":               "DB_LOG_LEVEL",
		"store.backend":                    "STORE_BACKEND",
		"store.dynamodb.region":            "DYNAMODB_REGION",
		"store.dynamodb.endpoint":          "DYNAMODB_ENDPOINT",
		"store.dynamodb.access_key_id":     "DYNAMODB_ACCESS_KEY_ID",
		"store.dynamodb.secret_access_key": "DYNAMODB_SECRET_ACCESS_KEY",
		"store.dynamodb.votes_table":       "DYNAMODB_VOTES_TABLE",
		"store.dynamodb.matches_table":     "DYNAMODB_MATCHES_TABLE",
		"store.dynamodb.pairs_table":       "DYNAMODB_PAIRS_TABLE",
		"redis.address":                    "REDIS_ADDRESS",
		"redis.password":                   "REDIS_PASSWORD",
		"redis.db":                         "REDIS_DB",
		"cache.enabled":                    "CACHE_ENABLED",
		"cache.ttl":                        "CACHE_TTL",
		"pubsub.driver":                    "PUBSUB_DRIVER",
		"pubsub.kafka.brokers":             "KAFKA_BROKERS",
		"pubsub.kafka.group_id":            "KAFKA_GROUP_ID",
		"jwt.secret":                       "JWT_SECRET",
		"jwt.access_ttl":                   "JWT_ACCESS_TTL",
		"jwt.refresh_ttl":                  "JWT_REFRESH_TTL",
		"storage.driver":                   "STORAGE_DRIVER",
		"storage.local.base_path":          "STORAGE_LOCAL_PATH",
		"storage.s3.endpoint":              "S3_ENDPOINT",
		"storage.s3.region":                "S3_REGION",
		"storage.s3.bucket":                "S3_BUCKET",
		"storage.s3.access_key_id":         "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key":     "S3_SECRET_ACCESS_KEY",
		"storage.s3.use_path_style":        "S3_USE_PATH_STYLE",
		"storage.s3.public_url":            "S3_PUBLIC_URL",
		"cors.allowed_origins":             "CORS_ALLOWED_ORIGINS",
		"sweeper.enabled":                  "SWEEPER_ENABLED",
		"sweeper.interval":                 "SWEEPER_INTERVAL",
		"rate_limit.enabled":               "RATE_LIMIT_ENABLED",
		"rate_limit.requests_per_minute":   "RATE_LIMIT_PER_MINUTE",
		"rate_limit.burst":                 "RATE_LIMIT_BURST",
		"log.level":                        "LOG_LEVEL",
		"log.pretty":                       "LOG_PRETTY",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// The pubsub redis driver shares the cache connection settings unless
	// configured separately.
	if cfg.PubSub.Redis.Address == "" {
		cfg.PubSub.Redis.Address = cfg.Redis.Address
		cfg.PubSub.Redis.Password = cfg.Redis.Password
		cfg.PubSub.Redis.DB = cfg.Redis.DB
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret (JWT_SECRET) is required")
	}
	switch c.Store.Backend {
	case BackendSQL, BackendDynamoDB:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}
