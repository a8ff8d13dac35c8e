// Package config loads the accountsd configuration from a YAML file and the
// environment.
package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/goliatone/go-accounts"
)

// Config is the root configuration
type Config struct {
	Env        string     `yaml:"env" env:"ACCOUNTS_ENV" env-default:"local"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Database   Database   `yaml:"database"`
	Redis      Redis      `yaml:"redis"`
	RabbitMQ   RabbitMQ   `yaml:"rabbitmq"`
	Accounts   Accounts   `yaml:"accounts"`
}

type HTTPServer struct {
	Address      string        `yaml:"address" env:"ACCOUNTS_HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"ACCOUNTS_HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"ACCOUNTS_HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"ACCOUNTS_HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Database struct {
	Driver       string `yaml:"driver" env:"ACCOUNTS_DB_DRIVER" env-default:"sqlite"`
	DSN          string `yaml:"dsn" env:"ACCOUNTS_DB_DSN" env-default:"file:accounts.db?cache=shared"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"ACCOUNTS_DB_MAX_OPEN_CONNS"`
}

// Redis enables the shared user cache when Address is set
type Redis struct {
	Address  string        `yaml:"address" env:"ACCOUNTS_REDIS_ADDRESS"`
	Username string        `yaml:"username" env:"ACCOUNTS_REDIS_USERNAME"`
	Password string        `yaml:"password" env:"ACCOUNTS_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"ACCOUNTS_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"ACCOUNTS_REDIS_TTL" env-default:"10m"`
}

// RabbitMQ enables notice publishing when URL is set
type RabbitMQ struct {
	URL      string `yaml:"url" env:"ACCOUNTS_RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env:"ACCOUNTS_RABBITMQ_EXCHANGE" env-default:"accounts.notices"`
}

// Accounts holds the lifecycle policy
type Accounts struct {
	ApprovalDomains       []string      `yaml:"approval_domains" env:"ACCOUNTS_APPROVAL_DOMAINS" env-separator:","`
	FreeEmailDomains      []string      `yaml:"free_email_domains" env:"ACCOUNTS_FREE_EMAIL_DOMAINS" env-separator:","`
	EmbargoedCountries    []string      `yaml:"embargoed_countries" env:"ACCOUNTS_EMBARGOED_COUNTRIES" env-separator:","`
	DefaultLanguage       string        `yaml:"default_language" env:"ACCOUNTS_DEFAULT_LANGUAGE"`
	DefaultPhoneRegion    string        `yaml:"default_phone_region" env:"ACCOUNTS_DEFAULT_PHONE_REGION"`
	TrialPeriodDays       int           `yaml:"trial_period_days" env:"ACCOUNTS_TRIAL_PERIOD_DAYS"`
	RenewalWindow         time.Duration `yaml:"renewal_window" env:"ACCOUNTS_RENEWAL_WINDOW"`
	DefaultTokenLifetime  time.Duration `yaml:"default_token_lifetime" env:"ACCOUNTS_DEFAULT_TOKEN_LIFETIME"`
	RetentionWindow       time.Duration `yaml:"retention_window" env:"ACCOUNTS_RETENTION_WINDOW"`
	SweepInterval         time.Duration `yaml:"sweep_interval" env:"ACCOUNTS_SWEEP_INTERVAL" env-default:"1h"`
	TrialAgreementName    string        `yaml:"trial_agreement_name" env:"ACCOUNTS_TRIAL_AGREEMENT_NAME"`
	TrialAgreementVersion string        `yaml:"trial_agreement_version" env:"ACCOUNTS_TRIAL_AGREEMENT_VERSION"`
	HashidUserIDs         bool          `yaml:"hashid_user_ids" env:"ACCOUNTS_HASHID_USER_IDS"`
}

// Load reads path when given and applies environment overrides. With an
// empty path only the environment is read.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads the file named by CONFIG_PATH
func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Fatalf("file: %s - does not exist", path)
		}
	}
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Policy maps the configured tunables onto the lifecycle policy. Unset
// values keep the lifecycle defaults.
func (c *Config) Policy() accounts.Policy {
	p := accounts.DefaultPolicy()
	a := c.Accounts
	p.ApprovalDomains = a.ApprovalDomains
	if len(a.FreeEmailDomains) > 0 {
		p.FreeEmailDomains = a.FreeEmailDomains
	}
	p.EmbargoedCountries = a.EmbargoedCountries
	if a.DefaultLanguage != "" {
		p.DefaultLanguage = a.DefaultLanguage
	}
	if a.DefaultPhoneRegion != "" {
		p.DefaultPhoneRegion = a.DefaultPhoneRegion
	}
	if a.TrialPeriodDays > 0 {
		p.TrialPeriodDays = a.TrialPeriodDays
	}
	if a.RenewalWindow > 0 {
		p.RenewalWindow = a.RenewalWindow
	}
	if a.DefaultTokenLifetime > 0 {
		p.DefaultTokenLifetime = a.DefaultTokenLifetime
	}
	if a.RetentionWindow > 0 {
		p.RetentionWindow = a.RetentionWindow
	}
	if a.TrialAgreementName != "" {
		p.TrialAgreementName = a.TrialAgreementName
	}
	if a.TrialAgreementVersion != "" {
		p.TrialAgreementVersion = a.TrialAgreementVersion
	}
	return p
}
