// Package config loads the operator-supplied TOML configuration file and
// layers flag and environment-variable overrides on top, in that
// precedence order (later wins). Shape grounded on
// ndrandal-feed-simulator/internal/config's flag+env Load(); the TOML
// layer is added because the original ships a human-edited config.toml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// Config is the fully resolved, ready-to-use configuration.
type Config struct {
	Network   Network
	Target    Target
	Identity  Identity
	Notify    Notify
	Dashboard Dashboard
	Archive   Archive
	Journal   Journal
	Challenge Challenge
	Debug     bool

	// SecretPath points at the encrypted identity blob written by
	// `ticketbot login`; Cookie/Header are decrypted into Identity at
	// startup, not read from the TOML file.
	SecretPath string `toml:"-"`
}

// Journal carries the optional MongoDB audit-trail connection (empty URI
// disables it entirely — spec.md §6 "persisted state: none during
// acquisition" makes this a pure debugging sidecar).
type Journal struct {
	MongoURI      string `toml:"mongo_uri"`
	RetentionDays int    `toml:"retention_days"`
}

// Challenge selects how geetest challenges are solved.
type Challenge struct {
	Manual         bool   `toml:"manual"`
	AutomaticURL   string `toml:"automatic_url"`
	ManualPageURL  string `toml:"manual_page_url"`
	ManualHeadless bool   `toml:"manual_headless"`
}

// Dashboard carries the local status-dashboard listen address (spec.md §6
// ambient; statusui's WebSocket+REST surface).
type Dashboard struct {
	Addr string `toml:"addr"`
}

// Archive carries the debug request/response log rotation settings,
// completing the teacher config's dangling S3Bucket/S3Region/S3Prefix
// fields (see internal/debugarchive).
type Archive struct {
	Dir          string `toml:"dir"`
	MaxMegabytes int    `toml:"max_megabytes"`
	IntervalMin  int    `toml:"interval_minutes"`
	S3Bucket     string `toml:"s3_bucket"`
	S3Region     string `toml:"s3_region"`
	S3Prefix     string `toml:"s3_prefix"`
}

// Network carries C1's transport tuning knobs (spec.md §6 "Network").
type Network struct {
	TimeoutSeconds int     `toml:"timeout"`
	SleepSeconds   float64 `toml:"sleep"`
	RestSeconds    int     `toml:"rest"`
	ProxyURL       string  `toml:"proxy"`
	RequestsPerSec float64 `toml:"requests_per_second"`
}

// Target carries the purchase target (spec.md §6 "Target").
type Target struct {
	ProjectID int64 `toml:"project_id"`
	ScreenID  int64 `toml:"screen_id"`
	SkuID     int64 `toml:"sku_id"`
	OrderType int   `toml:"order_type"`
	Count     int   `toml:"count"`
}

// Identity carries session/identity and attendee data (spec.md §6
// "Identity"). Cookie/header are loaded from the encrypted secret store,
// not this file, in the normal run path — they're exposed here only so
// `config show` and tests can operate on an in-memory config without the
// store.
type Identity struct {
	Cookie map[string]string `toml:"-"`
	Header map[string]string `toml:"-"`

	Buyer    []map[string]any `toml:"buyer"`
	Deliver  map[string]any   `toml:"deliver"`
	Phone    string           `toml:"phone"`
	UID      int64            `toml:"uid"`
	Username string           `toml:"username"`
}

// Notify carries the notification fan-out selection (spec.md §6
// "Notifications").
type Notify struct {
	System bool `toml:"system"`
	Sound  bool `toml:"sound"`

	PushPlusToken string `toml:"pushplus_token"`
	BarkToken     string `toml:"bark_token"`
	DingTalkToken string `toml:"dingding_token"`
	WeChatToken   string `toml:"wx_token"`
	FtqqToken     string `toml:"ftqq_token"`

	SMTP *SMTP `toml:"smtp"`
}

// SMTP is the nested mail-delivery config.
type SMTP struct {
	Host      string   `toml:"mail_host"`
	Port      int      `toml:"mail_port"`
	User      string   `toml:"mail_user"`
	Pass      string   `toml:"mail_pass"`
	Sender    string   `toml:"sender"`
	Receivers []string `toml:"receivers"`
}

// fileConfig is the TOML document shape; Identity.Cookie/Header are
// intentionally excluded here (they live in the secret store) but Target
// and Network map directly.
type fileConfig struct {
	Network   Network   `toml:"network"`
	Target    Target    `toml:"target"`
	Identity  Identity  `toml:"identity"`
	Notify    Notify    `toml:"notify"`
	Dashboard Dashboard `toml:"dashboard"`
	Archive   Archive   `toml:"archive"`
	Journal   Journal   `toml:"journal"`
	Challenge Challenge `toml:"challenge"`
}

// Defaults returns the baseline configuration before any file/flag/env
// layering is applied.
func Defaults() Config {
	return Config{
		Network: Network{
			TimeoutSeconds: 4,
			SleepSeconds:   0.8,
			RestSeconds:    30,
		},
		Target: Target{
			OrderType: 1,
			Count:     1,
		},
		Dashboard: Dashboard{
			Addr: "127.0.0.1:8787",
		},
		Archive: Archive{
			Dir:          "debug-archive",
			MaxMegabytes: 512,
			IntervalMin:  10,
			S3Region:     "us-east-1",
			S3Prefix:     "ticketbot",
		},
	}
}

// Load resolves a Config from defaults, an optional TOML file at path, CLI
// flags, and environment variables, in that precedence order. fs is a
// cobra command's already-parsed flag set (pflag, not stdlib flag); only
// flags the operator actually set (fs.Changed) override the file/defaults.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
			applyFile(&cfg, fc)
		}
	}

	applyFlags(&cfg, fs)
	applyEnv(&cfg)

	return &cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.Network.TimeoutSeconds != 0 {
		cfg.Network.TimeoutSeconds = fc.Network.TimeoutSeconds
	}
	if fc.Network.SleepSeconds != 0 {
		cfg.Network.SleepSeconds = fc.Network.SleepSeconds
	}
	if fc.Network.RestSeconds != 0 {
		cfg.Network.RestSeconds = fc.Network.RestSeconds
	}
	cfg.Network.ProxyURL = fc.Network.ProxyURL
	cfg.Network.RequestsPerSec = fc.Network.RequestsPerSec

	if fc.Target.ProjectID != 0 {
		cfg.Target = fc.Target
	}

	cfg.Identity.Buyer = fc.Identity.Buyer
	cfg.Identity.Deliver = fc.Identity.Deliver
	cfg.Identity.Phone = fc.Identity.Phone
	cfg.Identity.UID = fc.Identity.UID
	cfg.Identity.Username = fc.Identity.Username

	cfg.Notify = fc.Notify

	if fc.Dashboard.Addr != "" {
		cfg.Dashboard.Addr = fc.Dashboard.Addr
	}
	if fc.Archive.Dir != "" {
		cfg.Archive = fc.Archive
	}

	cfg.Journal = fc.Journal
	cfg.Challenge = fc.Challenge
}

// applyFlags layers command-line overrides for the fields an operator is
// most likely to tweak per-invocation. fs may be nil (tests / config show
// without a live flag set); flags the operator never set are left alone
// so they don't clobber a value already set by the file.
func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	if fs == nil {
		return
	}
	if fs.Changed("project-id") {
		cfg.Target.ProjectID, _ = fs.GetInt64("project-id")
	}
	if fs.Changed("screen-id") {
		cfg.Target.ScreenID, _ = fs.GetInt64("screen-id")
	}
	if fs.Changed("sku-id") {
		cfg.Target.SkuID, _ = fs.GetInt64("sku-id")
	}
	if fs.Changed("sleep") {
		cfg.Network.SleepSeconds, _ = fs.GetFloat64("sleep")
	}
	if fs.Changed("debug") {
		cfg.Debug, _ = fs.GetBool("debug")
	}
	if fs.Changed("secret-path") {
		cfg.SecretPath, _ = fs.GetString("secret-path")
	}
	if fs.Changed("dashboard-addr") {
		cfg.Dashboard.Addr, _ = fs.GetString("dashboard-addr")
	}
}

func applyEnv(cfg *Config) {
	if v := envInt64("TICKETBOT_PROJECT_ID", 0); v != 0 {
		cfg.Target.ProjectID = v
	}
	if v := envInt64("TICKETBOT_SCREEN_ID", 0); v != 0 {
		cfg.Target.ScreenID = v
	}
	if v := envInt64("TICKETBOT_SKU_ID", 0); v != 0 {
		cfg.Target.SkuID = v
	}
	if v := os.Getenv("TICKETBOT_PROXY"); v != "" {
		cfg.Network.ProxyURL = v
	}
	if os.Getenv("TICKETBOT_DEBUG") == "1" {
		cfg.Debug = true
	}
}

// Timeout converts the configured seconds into a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

// DefaultSleep converts the configured sleep seconds into a time.Duration.
func (c Config) DefaultSleep() time.Duration {
	return time.Duration(c.Network.SleepSeconds * float64(time.Second))
}

// BanCooldown converts the configured rest seconds into a time.Duration.
func (c Config) BanCooldown() time.Duration {
	return time.Duration(c.Network.RestSeconds) * time.Second
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
