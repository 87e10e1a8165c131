package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the gateway and the bot.
type Config struct {
	App  string `mapstructure:"-"`
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Storage struct {
		Driver      string `mapstructure:"driver"`
		Dir         string `mapstructure:"dir"`
		BoltPath    string `mapstructure:"bolt_path"`
		JournalPath string `mapstructure:"journal_path"`
	} `mapstructure:"storage"`
	RouterOS struct {
		DialTimeout    time.Duration `mapstructure:"dial_timeout"`
		CommandTimeout time.Duration `mapstructure:"command_timeout"`
		TLS            bool          `mapstructure:"tls"`
		TLSSkipVerify  bool          `mapstructure:"tls_skip_verify"`
	} `mapstructure:"routeros"`
	RouterDefaults struct {
		ID               string `mapstructure:"id"`
		Name             string `mapstructure:"name"`
		Address          string `mapstructure:"ip"`
		Port             int    `mapstructure:"port"`
		Username         string `mapstructure:"username"`
		Password         string `mapstructure:"password"`
		IsolationProfile string `mapstructure:"isolir_profile"`
		DefaultProfile   string `mapstructure:"default_profile"`
	} `mapstructure:"router_defaults"`
	Voucher struct {
		CommentPrefix string `mapstructure:"comment_prefix"`
	} `mapstructure:"voucher"`
	Telegram struct {
		APIBaseURL          string        `mapstructure:"api_base_url"`
		BotToken            string        `mapstructure:"bot_token"`
		AdminChatIDs        []string      `mapstructure:"admin_chat_ids"`
		AdminFile           string        `mapstructure:"admin_file"`
		DBDriver            string        `mapstructure:"db_driver"`
		DBDSN               string        `mapstructure:"db_dsn"`
		PollTimeout         time.Duration `mapstructure:"poll_timeout"`
		RequestTimeout      time.Duration `mapstructure:"request_timeout"`
		MaxErrors           int           `mapstructure:"max_errors"`
		ShortBackoff        time.Duration `mapstructure:"short_backoff"`
		LongBackoff         time.Duration `mapstructure:"long_backoff"`
		MaxDeliveryAttempts int           `mapstructure:"max_delivery_attempts"`
		PIDFile             string        `mapstructure:"pid_file"`
		StartupNotice       bool          `mapstructure:"startup_notice"`
		WebhookSecret       string        `mapstructure:"webhook_secret"`
		MetricsAddr         string        `mapstructure:"metrics_addr"`
	} `mapstructure:"telegram"`
	NATS struct {
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`
	Log struct {
		Level  string `mapstructure:"level"`
		Output string `mapstructure:"output"`
	} `mapstructure:"log"`
	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`
}

// Load reads the configuration from disk/environment using Viper. app names
// the calling process and seeds defaults that must differ between processes
// sharing one data directory.
func Load(path, app string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("acs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, app)

	if flags != nil {
		if f := flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log.level", f); err != nil {
				return nil, fmt.Errorf("bind flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// missing file is fine, env-only deployments are supported
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.App = app
	if cfg.Telegram.RequestTimeout <= cfg.Telegram.PollTimeout {
		cfg.Telegram.RequestTimeout = cfg.Telegram.PollTimeout + 15*time.Second
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, app string) {
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "90s")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.bolt_path", "./data/gateway.db")
	v.SetDefault("storage.journal_path", filepath.Join("./data", app+"-journal.db"))

	v.SetDefault("routeros.dial_timeout", "10s")
	v.SetDefault("routeros.command_timeout", "30s")
	v.SetDefault("routeros.tls", false)
	v.SetDefault("routeros.tls_skip_verify", false)

	v.SetDefault("router_defaults.id", "router1")
	v.SetDefault("router_defaults.name", "Main Router")
	v.SetDefault("router_defaults.ip", "192.168.88.1")
	v.SetDefault("router_defaults.port", 8728)
	v.SetDefault("router_defaults.username", "admin")
	v.SetDefault("router_defaults.password", "")
	v.SetDefault("router_defaults.isolir_profile", "isolir")
	v.SetDefault("router_defaults.default_profile", "default")

	v.SetDefault("voucher.comment_prefix", "vc-acs")

	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.admin_file", "./data/admin.json")
	v.SetDefault("telegram.db_driver", "sqlite3")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.max_errors", 5)
	v.SetDefault("telegram.short_backoff", "2s")
	v.SetDefault("telegram.long_backoff", "10s")
	v.SetDefault("telegram.max_delivery_attempts", 3)
	v.SetDefault("telegram.pid_file", "/var/run/telegram_bot.pid")
	v.SetDefault("telegram.startup_notice", true)

	v.SetDefault("nats.subject", "acs.router.actions")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
