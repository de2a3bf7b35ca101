package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks for the config file when no path is given.
const DefaultPath = "config/config.json"

// AppConfig holds every runtime setting of the service. It is built once at boot and
// handed to the components that need it; nothing below main reads the environment.
// Secrets have no defaults and must come from the config file, a .env file or the environment.
type AppConfig struct {
	AppPort        string
	GinMode        string
	GinPath        string
	AllowedOrigins []string
	// PublicBaseURL is the externally visible address of the web app, used in emails.
	PublicBaseURL string

	// Tokens and login codes
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	ParentTokenTTL  time.Duration
	KidTokenTTL     time.Duration
	LoginCodeSecret string
	LoginCodeBytes  int

	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis backs the shared rate limiters; empty address keeps limiters in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limits
	LoginLimitPerIP    int
	LoginLimitPerCode  int
	LoginWindow        time.Duration
	RegisterLimitPerIP int
	RegisterWindow     time.Duration
	UploadLimit        int
	UploadWindow       time.Duration

	// Photo uploads
	UploadDir           string
	UploadMaxBytes      int64
	UploadRetention     time.Duration
	UploadSweepInterval time.Duration

	// S3 presigned uploads
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
	S3PublicBaseURL   string
	S3PresignTTL      time.Duration

	// Outbound mail
	MailProvider     string
	MailFrom         string
	MailFromName     string
	SESRegion        string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPTLS          bool
	MailQueueSize    int
	MailMaxAttempts  int
	MailRetryBackoff time.Duration

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// fileConfig mirrors the grouped layout of config.json / config.yaml.
type fileConfig struct {
	App struct {
		AppPort        string   `yaml:"AppPort"`
		AllowedOrigins []string `yaml:"AllowedOrigins"`
		PublicBaseURL  string   `yaml:"PublicBaseURL"`
	} `yaml:"app"`
	Auth struct {
		JWTSecret       string        `yaml:"JWTSecret"`
		JWTIssuer       string        `yaml:"JWTIssuer"`
		JWTAudience     string        `yaml:"JWTAudience"`
		ParentTokenTTL  time.Duration `yaml:"ParentTokenTTL"`
		KidTokenTTL     time.Duration `yaml:"KidTokenTTL"`
		LoginCodeSecret string        `yaml:"LoginCodeSecret"`
		LoginCodeBytes  int           `yaml:"LoginCodeBytes"`
	} `yaml:"auth"`
	Database struct {
		Driver      string `yaml:"Driver"`
		DatabaseURI string `yaml:"DatabaseURI"`
		DBHost      string `yaml:"DBHost"`
		DBPort      string `yaml:"DBPort"`
		DBUser      string `yaml:"DBUser"`
		DBPassword  string `yaml:"DBPassword"`
		DBName      string `yaml:"DBName"`
		SSLMode     string `yaml:"SSLMode"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"Addr"`
		Password string `yaml:"Password"`
		DB       int    `yaml:"DB"`
	} `yaml:"redis"`
	Limits struct {
		LoginPerIP    int           `yaml:"LoginPerIP"`
		LoginPerCode  int           `yaml:"LoginPerCode"`
		LoginWindow   time.Duration `yaml:"LoginWindow"`
		RegisterPerIP int           `yaml:"RegisterPerIP"`
		RegisterWin   time.Duration `yaml:"RegisterWindow"`
		Upload        int           `yaml:"Upload"`
		UploadWindow  time.Duration `yaml:"UploadWindow"`
	} `yaml:"limits"`
	Uploads struct {
		Dir           string        `yaml:"Dir"`
		MaxBytes      int64         `yaml:"MaxBytes"`
		Retention     time.Duration `yaml:"Retention"`
		SweepInterval time.Duration `yaml:"SweepInterval"`
	} `yaml:"uploads"`
	S3 struct {
		Region          string        `yaml:"Region"`
		Bucket          string        `yaml:"Bucket"`
		AccessKeyID     string        `yaml:"AccessKeyID"`
		SecretAccessKey string        `yaml:"SecretAccessKey"`
		Endpoint        string        `yaml:"Endpoint"`
		PublicBaseURL   string        `yaml:"PublicBaseURL"`
		PresignTTL      time.Duration `yaml:"PresignTTL"`
	} `yaml:"s3"`
	Mail struct {
		Provider     string        `yaml:"Provider"`
		From         string        `yaml:"From"`
		FromName     string        `yaml:"FromName"`
		SESRegion    string        `yaml:"SESRegion"`
		SMTPHost     string        `yaml:"SMTPHost"`
		SMTPPort     int           `yaml:"SMTPPort"`
		SMTPUsername string        `yaml:"SMTPUsername"`
		SMTPPassword string        `yaml:"SMTPPassword"`
		SMTPTLS      bool          `yaml:"SMTPTLS"`
		QueueSize    int           `yaml:"QueueSize"`
		MaxAttempts  int           `yaml:"MaxAttempts"`
		RetryBackoff time.Duration `yaml:"RetryBackoff"`
	} `yaml:"mail"`
	Log struct {
		Level      string `yaml:"Level"`
		Path       string `yaml:"Path"`
		GinMode    string `yaml:"GinMode"`
		GinPath    string `yaml:"GinPath"`
		MaxSizeMB  int    `yaml:"MaxSizeMB"`
		MaxBackups int    `yaml:"MaxBackups"`
		MaxAgeDays int    `yaml:"MaxAgeDays"`
		Compress   bool   `yaml:"Compress"`
	} `yaml:"log"`
}

// Load builds the configuration.
// Precedence: config file -> defaults -> .env / environment variable overrides.
// A missing config file is not an error; a malformed one is.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &AppConfig{}
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration errors that must stop the process at boot.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	switch c.DBDriver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.LoginCodeBytes < 4 {
		errs = append(errs, fmt.Errorf("LOGIN_CODE_BYTES must be at least 4, got %d", c.LoginCodeBytes))
	}
	if c.KidTokenTTL <= 0 || c.ParentTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	switch c.MailProvider {
	case "", "ses", "smtp":
	default:
		errs = append(errs, fmt.Errorf("unsupported MAIL_PROVIDER %q", c.MailProvider))
	}
	return errors.Join(errs...)
}

// S3Enabled reports whether presigned uploads can be served.
func (c *AppConfig) S3Enabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

// loadFile reads a YAML or JSON config file. JSON is valid YAML, so one decoder serves both.
func loadFile(path string, out *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	out.AppPort = fc.App.AppPort
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.PublicBaseURL = fc.App.PublicBaseURL

	out.JWTSecret = fc.Auth.JWTSecret
	out.JWTIssuer = fc.Auth.JWTIssuer
	out.JWTAudience = fc.Auth.JWTAudience
	out.ParentTokenTTL = fc.Auth.ParentTokenTTL
	out.KidTokenTTL = fc.Auth.KidTokenTTL
	out.LoginCodeSecret = fc.Auth.LoginCodeSecret
	out.LoginCodeBytes = fc.Auth.LoginCodeBytes

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.DatabaseURI
	out.DBHost = fc.Database.DBHost
	out.DBPort = fc.Database.DBPort
	out.DBUser = fc.Database.DBUser
	out.DBPassword = fc.Database.DBPassword
	out.DBName = fc.Database.DBName
	out.DBSSLMode = fc.Database.SSLMode

	out.RedisAddr = fc.Redis.Addr
	out.RedisPassword = fc.Redis.Password
	out.RedisDB = fc.Redis.DB

	out.LoginLimitPerIP = fc.Limits.LoginPerIP
	out.LoginLimitPerCode = fc.Limits.LoginPerCode
	out.LoginWindow = fc.Limits.LoginWindow
	out.RegisterLimitPerIP = fc.Limits.RegisterPerIP
	out.RegisterWindow = fc.Limits.RegisterWin
	out.UploadLimit = fc.Limits.Upload
	out.UploadWindow = fc.Limits.UploadWindow

	out.UploadDir = fc.Uploads.Dir
	out.UploadMaxBytes = fc.Uploads.MaxBytes
	out.UploadRetention = fc.Uploads.Retention
	out.UploadSweepInterval = fc.Uploads.SweepInterval

	out.S3Region = fc.S3.Region
	out.S3Bucket = fc.S3.Bucket
	out.S3AccessKeyID = fc.S3.AccessKeyID
	out.S3SecretAccessKey = fc.S3.SecretAccessKey
	out.S3Endpoint = fc.S3.Endpoint
	out.S3PublicBaseURL = fc.S3.PublicBaseURL
	out.S3PresignTTL = fc.S3.PresignTTL

	out.MailProvider = fc.Mail.Provider
	out.MailFrom = fc.Mail.From
	out.MailFromName = fc.Mail.FromName
	out.SESRegion = fc.Mail.SESRegion
	out.SMTPHost = fc.Mail.SMTPHost
	out.SMTPPort = fc.Mail.SMTPPort
	out.SMTPUsername = fc.Mail.SMTPUsername
	out.SMTPPassword = fc.Mail.SMTPPassword
	out.SMTPTLS = fc.Mail.SMTPTLS
	out.MailQueueSize = fc.Mail.QueueSize
	out.MailMaxAttempts = fc.Mail.MaxAttempts
	out.MailRetryBackoff = fc.Mail.RetryBackoff

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.GinMode = fc.Log.GinMode
	out.GinPath = fc.Log.GinPath
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "4000"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:4000"
	}
	if c.ParentTokenTTL == 0 {
		c.ParentTokenTTL = 12 * time.Hour
	}
	if c.KidTokenTTL == 0 {
		c.KidTokenTTL = 4 * time.Hour
	}
	if c.LoginCodeBytes == 0 {
		c.LoginCodeBytes = 5
	}
	if c.DBDriver == "" {
		c.DBDriver = "postgres"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "mysql" {
			c.DBPort = "3306"
		} else {
			c.DBPort = "5432"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "kcbuddy"
	}
	if c.DBName == "" {
		c.DBName = "kcbuddy"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.LoginLimitPerIP == 0 {
		c.LoginLimitPerIP = 30
	}
	if c.LoginLimitPerCode == 0 {
		c.LoginLimitPerCode = 10
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = 15 * time.Minute
	}
	if c.RegisterLimitPerIP == 0 {
		c.RegisterLimitPerIP = 10
	}
	if c.RegisterWindow == 0 {
		c.RegisterWindow = time.Hour
	}
	if c.UploadLimit == 0 {
		c.UploadLimit = 20
	}
	if c.UploadWindow == 0 {
		c.UploadWindow = 15 * time.Minute
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.UploadMaxBytes == 0 {
		c.UploadMaxBytes = 5 << 20
	}
	if c.UploadRetention == 0 {
		c.UploadRetention = 7 * 24 * time.Hour
	}
	if c.UploadSweepInterval == 0 {
		c.UploadSweepInterval = 12 * time.Hour
	}
	if c.S3PresignTTL == 0 {
		c.S3PresignTTL = 5 * time.Minute
	}
	if c.MailFromName == "" {
		c.MailFromName = "KCBuddy"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.MailQueueSize == 0 {
		c.MailQueueSize = 256
	}
	if c.MailMaxAttempts == 0 {
		c.MailMaxAttempts = 3
	}
	if c.MailRetryBackoff == 0 {
		c.MailRetryBackoff = 2 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// envReader applies overrides and remembers the first malformed value.
type envReader struct {
	err error
}

func (r *envReader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = i
}

func (r *envReader) int64(key string, dst *int64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = i
}

func (r *envReader) boolean(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = d
}

func (r *envReader) list(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		*dst = splitAndTrim(v)
	}
}

func (r *envReader) fail(key, val string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid value %q for %s: %w", val, key, err)
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	r := &envReader{}
	r.str("PORT", &c.AppPort)
	r.str("APP_PORT", &c.AppPort)
	r.str("GIN_MODE", &c.GinMode)
	r.str("GIN_PATH", &c.GinPath)
	r.list("CORS_ALLOWED_ORIGINS", &c.AllowedOrigins)
	r.str("PUBLIC_BASE_URL", &c.PublicBaseURL)

	r.str("JWT_SECRET", &c.JWTSecret)
	r.str("JWT_ISSUER", &c.JWTIssuer)
	r.str("JWT_AUDIENCE", &c.JWTAudience)
	r.duration("PARENT_TOKEN_TTL", &c.ParentTokenTTL)
	r.duration("KID_TOKEN_TTL", &c.KidTokenTTL)
	r.str("LOGIN_CODE_SECRET", &c.LoginCodeSecret)
	r.integer("LOGIN_CODE_BYTES", &c.LoginCodeBytes)

	r.str("DB_DRIVER", &c.DBDriver)
	r.str("DATABASE_URL", &c.DatabaseURI)
	r.str("DATABASE_URI", &c.DatabaseURI)
	r.str("DB_HOST", &c.DBHost)
	r.str("DB_PORT", &c.DBPort)
	r.str("DB_USER", &c.DBUser)
	r.str("DB_PASSWORD", &c.DBPassword)
	r.str("DB_NAME", &c.DBName)
	r.str("DB_SSLMODE", &c.DBSSLMode)

	r.str("REDIS_ADDR", &c.RedisAddr)
	r.str("REDIS_PASSWORD", &c.RedisPassword)
	r.integer("REDIS_DB", &c.RedisDB)

	r.integer("LOGIN_LIMIT_PER_IP", &c.LoginLimitPerIP)
	r.integer("LOGIN_LIMIT_PER_CODE", &c.LoginLimitPerCode)
	r.duration("LOGIN_WINDOW", &c.LoginWindow)
	r.integer("REGISTER_LIMIT_PER_IP", &c.RegisterLimitPerIP)
	r.duration("REGISTER_WINDOW", &c.RegisterWindow)
	r.integer("UPLOAD_LIMIT", &c.UploadLimit)
	r.duration("UPLOAD_WINDOW", &c.UploadWindow)

	r.str("UPLOAD_DIR", &c.UploadDir)
	r.int64("UPLOAD_MAX_BYTES", &c.UploadMaxBytes)
	r.duration("UPLOAD_RETENTION", &c.UploadRetention)
	r.duration("UPLOAD_SWEEP_INTERVAL", &c.UploadSweepInterval)

	r.str("S3_REGION", &c.S3Region)
	r.str("S3_BUCKET", &c.S3Bucket)
	r.str("S3_ACCESS_KEY_ID", &c.S3AccessKeyID)
	r.str("S3_SECRET_ACCESS_KEY", &c.S3SecretAccessKey)
	r.str("S3_ENDPOINT", &c.S3Endpoint)
	r.str("S3_PUBLIC_BASE_URL", &c.S3PublicBaseURL)
	r.duration("S3_PRESIGN_TTL", &c.S3PresignTTL)

	r.str("MAIL_PROVIDER", &c.MailProvider)
	r.str("MAIL_FROM", &c.MailFrom)
	r.str("MAIL_FROM_NAME", &c.MailFromName)
	r.str("SES_REGION", &c.SESRegion)
	r.str("SMTP_HOST", &c.SMTPHost)
	r.integer("SMTP_PORT", &c.SMTPPort)
	r.str("SMTP_USERNAME", &c.SMTPUsername)
	r.str("SMTP_PASSWORD", &c.SMTPPassword)
	r.boolean("SMTP_TLS", &c.SMTPTLS)
	r.integer("MAIL_QUEUE_SIZE", &c.MailQueueSize)
	r.integer("MAIL_MAX_ATTEMPTS", &c.MailMaxAttempts)
	r.duration("MAIL_RETRY_BACKOFF", &c.MailRetryBackoff)

	r.str("LOG_LEVEL", &c.LogLevel)
	r.str("LOG_PATH", &c.LogPath)
	r.integer("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	r.integer("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	r.integer("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	r.boolean("LOG_COMPRESS", &c.LogCompress)

	c.S3PublicBaseURL = strings.TrimRight(c.S3PublicBaseURL, "/")
	return r.err
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
