package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "./configs/config.local.yaml"

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin HTTP
}

type LogFile struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type Session struct {
	Secret          string
	Issuer          string
	TTLMin          int
	AdminTTLMin     int
	CookieName      string
	AdminCookieName string
	CookieDomain    string
	SecureCookie    bool
}

type Admin struct {
	Username     string
	PasswordHash string
}

type Entitlement struct {
	TrialHours  int
	PremiumDays int
}

func (e Entitlement) TrialPeriod() time.Duration   { return time.Duration(e.TrialHours) * time.Hour }
func (e Entitlement) PremiumPeriod() time.Duration { return time.Duration(e.PremiumDays) * 24 * time.Hour }

type Payment struct {
	CheckoutURL     string
	ReferenceParam  string
	WebhookSecret   string
	SignatureHeader string
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

type Redis struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	UserTTLSec int    `mapstructure:"userTTLSec"`
}

func (r Redis) Enabled() bool { return r.Addr != "" }

type AMQP struct {
	URL   string
	Queue string
}

func (a AMQP) Enabled() bool { return a.URL != "" }

type Limits struct {
	RPS               float64
	Burst             int
	LoginRPS          float64
	LoginBurst        int
	WebhookRPS        float64
	WebhookBurst      int
	MaxConcurrent     int64
	MaxBodyBytes      int64
	RequestTimeoutSec int
}

type Config struct {
	App         App
	Log         Log
	Session     Session
	Admin       Admin
	Entitlement Entitlement
	Payment     Payment
	DB          DB
	Redis       Redis `mapstructure:"redis"`
	AMQP        AMQP
	Limits      Limits
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "subgate")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 10)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("app.admin.readTimeoutSec", 5)
	v.SetDefault("app.admin.writeTimeoutSec", 10)
	v.SetDefault("app.admin.idleTimeoutSec", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file.enable", false)
	v.SetDefault("log.file.filename", "logs/subgate.log")
	v.SetDefault("log.file.maxSizeMB", 100)
	v.SetDefault("log.file.maxBackups", 7)
	v.SetDefault("log.file.maxAgeDays", 30)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "subgate")
	v.SetDefault("session.ttlMin", 7*24*60)
	v.SetDefault("session.adminTTLMin", 60)
	v.SetDefault("session.cookieName", "subgate_session")
	v.SetDefault("session.adminCookieName", "subgate_admin")
	v.SetDefault("session.cookieDomain", "")
	v.SetDefault("session.secureCookie", false)

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.passwordHash", "")

	v.SetDefault("entitlement.trialHours", 24)
	v.SetDefault("entitlement.premiumDays", 30)

	v.SetDefault("payment.checkoutURL", "")
	v.SetDefault("payment.referenceParam", "ref")
	v.SetDefault("payment.webhookSecret", "")
	v.SetDefault("payment.signatureHeader", "X-Signature")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:subgate.db?_pragma=journal_mode(WAL)")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.maxOpenConns", 20)
	v.SetDefault("db.maxIdleConns", 5)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.autoMigrate", true)
	v.SetDefault("db.logLevel", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.userTTLSec", 30)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "subgate.entitlements")

	v.SetDefault("limits.rps", 200)
	v.SetDefault("limits.burst", 400)
	v.SetDefault("limits.loginRPS", 0.5)
	v.SetDefault("limits.loginBurst", 5)
	v.SetDefault("limits.webhookRPS", 5)
	v.SetDefault("limits.webhookBurst", 20)
	v.SetDefault("limits.maxConcurrent", 300)
	v.SetDefault("limits.maxBodyBytes", 1<<20)
	v.SetDefault("limits.requestTimeoutSec", 10)
}

// Load 读取 YAML + APP_ 环境变量（APP_SESSION_SECRET → session.secret）。
// path 为空时取 CONFIG_PATH，再退回 DefaultPath；默认路径不存在时只用默认值 + 环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := true
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate 会话密钥必须来自配置，不提供内置默认值
func (c *Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("session.secret must be set (>= 16 chars)"))
	}
	if c.Entitlement.TrialHours <= 0 || c.Entitlement.PremiumDays <= 0 {
		errs = append(errs, errors.New("entitlement periods must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateAdmin 后台进程额外要求管理员凭据（密码为 bcrypt hash）
func (c *Config) ValidateAdmin() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Admin.Username == "" || !strings.HasPrefix(c.Admin.PasswordHash, "$2") {
		return errors.New("admin.username and admin.passwordHash (bcrypt) must be set")
	}
	return nil
}
