package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Hardware      HardwareConfig
	OTP           OTPConfig
	Dispatch      DispatchConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.OTP.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PARCELHIVE_APP_ENV" required:"true"`
	Port         string `envconfig:"PARCELHIVE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARCELHIVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PARCELHIVE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PARCELHIVE_DB_DSN"`
	Driver string `envconfig:"PARCELHIVE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARCELHIVE_DB_HOST"`
	LegacyPort     int    `envconfig:"PARCELHIVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARCELHIVE_DB_USER"`
	LegacyPassword string `envconfig:"PARCELHIVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARCELHIVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARCELHIVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARCELHIVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARCELHIVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARCELHIVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARCELHIVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARCELHIVE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PARCELHIVE_REDIS_ADDR"`
	Password     string        `envconfig:"PARCELHIVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARCELHIVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARCELHIVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARCELHIVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARCELHIVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARCELHIVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARCELHIVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"PARCELHIVE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"PARCELHIVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"PARCELHIVE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"PARCELHIVE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PARCELHIVE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PARCELHIVE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PARCELHIVE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PARCELHIVE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PARCELHIVE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	OTPWindow          time.Duration `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_OTP_WINDOW" default:"1m"`
	OTPUserLimit       int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_OTP_USER_LIMIT" default:"10"`
	OTPIPLimit         int           `envconfig:"PARCELHIVE_AUTH_RATE_LIMIT_OTP_IP_LIMIT" default:"30"`
}

// HardwareConfig targets the Pub/Sub command topics lockers subscribe to.
type HardwareConfig struct {
	ProjectID      string        `envconfig:"PARCELHIVE_GCP_PROJECT_ID" required:"true"`
	TopicPrefix    string        `envconfig:"PARCELHIVE_HARDWARE_TOPIC_PREFIX" default:"locker"`
	PublishTimeout time.Duration `envconfig:"PARCELHIVE_HARDWARE_PUBLISH_TIMEOUT" default:"10s"`
}

type OTPConfig struct {
	TTL time.Duration `envconfig:"PARCELHIVE_OTP_TTL" default:"120s"`
}

// The unlock codes expire autonomously; the TTL window is bounded so a code
// neither dies before the customer reaches the locker nor lingers long enough
// to be shoulder-surfed.
func (o OTPConfig) validate() error {
	if o.TTL < time.Minute || o.TTL > 5*time.Minute {
		return fmt.Errorf("otp ttl must be between 60s and 300s, got %s", o.TTL)
	}
	return nil
}

type DispatchConfig struct {
	PollInterval time.Duration `envconfig:"PARCELHIVE_DISPATCH_POLL_INTERVAL" default:"30s"`
	MetricsPort  string        `envconfig:"PARCELHIVE_DISPATCH_METRICS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PARCELHIVE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
