package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDispatchSpec    = "@every 1m"
	DefaultDispatchBatch   = 30
	DefaultDeliveryTimeout = 15 * time.Second

	DeliveryLINE     = "line"
	DeliveryTelegram = "telegram"
)

type Config struct {
	DatabasePath string
	ServerPort   string
	Timezone     *time.Location

	// APIKey guards the internal routes. Empty disables them.
	APIKey string

	LineChannelAccessToken string
	LineLoginChannelID     string
	LineAPIBase            string

	Delivery      string
	TelegramToken string

	DispatchSpec    string
	DispatchBatch   int
	DeliveryTimeout time.Duration
	PushRate        float64 // messages per second, 0 means unlimited

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
	// CalDAVOwner limits the mirror to one owner's exceptions. Empty
	// mirrors every owner into the shared calendar.
	CalDAVOwner    string

	LogLevel  string
	LogFormat string
}

// fileConfig mirrors the environment keys for the optional YAML overlay.
type fileConfig struct {
	DatabasePath           string `yaml:"database_path"`
	ServerPort             string `yaml:"server_port"`
	Timezone               string `yaml:"timezone"`
	APIKey                 string `yaml:"api_key"`
	LineChannelAccessToken string `yaml:"line_channel_access_token"`
	LineLoginChannelID     string `yaml:"line_login_channel_id"`
	LineAPIBase            string `yaml:"line_api_base"`
	Delivery               string `yaml:"delivery"`
	TelegramToken          string `yaml:"telegram_bot_token"`
	DispatchSpec           string `yaml:"dispatch_spec"`
	DispatchBatch          string `yaml:"dispatch_batch"`
	DeliveryTimeout        string `yaml:"delivery_timeout"`
	PushRate               string `yaml:"push_rate"`
	CalDAVURL              string `yaml:"caldav_url"`
	CalDAVUsername         string `yaml:"caldav_username"`
	CalDAVPassword         string `yaml:"caldav_password"`
	CalDAVCalendar         string `yaml:"caldav_calendar"`
	CalDAVOwner            string `yaml:"caldav_owner"`
	LogLevel               string `yaml:"log_level"`
	LogFormat              string `yaml:"log_format"`
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then the process environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return fromSources(fc, os.Getenv)
}

func fromSources(fc fileConfig, getenv func(string) string) (*Config, error) {
	get := func(key, fileVal, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(fileVal); v != "" {
			return v
		}
		return def
	}

	tzName := get("TIMEZONE", fc.Timezone, "Asia/Bangkok")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	batch, err := strconv.Atoi(get("DISPATCH_BATCH", fc.DispatchBatch, strconv.Itoa(DefaultDispatchBatch)))
	if err != nil || batch <= 0 {
		return nil, fmt.Errorf("DISPATCH_BATCH must be a positive number")
	}

	timeout, err := time.ParseDuration(get("DELIVERY_TIMEOUT", fc.DeliveryTimeout, DefaultDeliveryTimeout.String()))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("DELIVERY_TIMEOUT must be a positive duration")
	}

	pushRate, err := strconv.ParseFloat(get("PUSH_RATE", fc.PushRate, "0"), 64)
	if err != nil || pushRate < 0 {
		return nil, fmt.Errorf("PUSH_RATE must be a non-negative number")
	}

	delivery := strings.ToLower(get("DELIVERY", fc.Delivery, DeliveryLINE))
	if delivery != DeliveryLINE && delivery != DeliveryTelegram {
		return nil, fmt.Errorf("DELIVERY must be %q or %q", DeliveryLINE, DeliveryTelegram)
	}

	return &Config{
		DatabasePath:           get("DATABASE_PATH", fc.DatabasePath, "./data/holidaybot.db"),
		ServerPort:             get("SERVER_PORT", fc.ServerPort, "8080"),
		Timezone:               tz,
		APIKey:                 get("API_KEY", fc.APIKey, ""),
		LineChannelAccessToken: get("LINE_CHANNEL_ACCESS_TOKEN", fc.LineChannelAccessToken, ""),
		LineLoginChannelID:     get("LINE_LOGIN_CHANNEL_ID", fc.LineLoginChannelID, ""),
		LineAPIBase:            get("LINE_API_BASE", fc.LineAPIBase, "https://api.line.me"),
		Delivery:               delivery,
		TelegramToken:          get("TELEGRAM_BOT_TOKEN", fc.TelegramToken, ""),
		DispatchSpec:           get("DISPATCH_SPEC", fc.DispatchSpec, DefaultDispatchSpec),
		DispatchBatch:          batch,
		DeliveryTimeout:        timeout,
		PushRate:               pushRate,
		CalDAVURL:              get("CALDAV_URL", fc.CalDAVURL, ""),
		CalDAVUsername:         get("CALDAV_USERNAME", fc.CalDAVUsername, ""),
		CalDAVPassword:         get("CALDAV_PASSWORD", fc.CalDAVPassword, ""),
		CalDAVCalendar:         get("CALDAV_CALENDAR", fc.CalDAVCalendar, ""),
		CalDAVOwner:            get("CALDAV_OWNER", fc.CalDAVOwner, ""),
		LogLevel:               get("LOG_LEVEL", fc.LogLevel, "info"),
		LogFormat:              get("LOG_FORMAT", fc.LogFormat, "json"),
	}, nil
}

// ValidateDelivery checks that the selected gateway has credentials. Only the
// commands that push messages need it.
func (c *Config) ValidateDelivery() error {
	switch c.Delivery {
	case DeliveryTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for telegram delivery")
		}
	default:
		if c.LineChannelAccessToken == "" {
			return fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN is required for line delivery")
		}
	}
	return nil
}

