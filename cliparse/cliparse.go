package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Role         string
	Port         int
	DatabaseURL  string
	DatabaseType string

	// Broker connection, fixed for the life of the process
	BrokerURL      string
	ClientPrefix   string
	CleanSession   bool
	ConnectTimeout time.Duration

	LoadTimeout   time.Duration
	DedupWindow   time.Duration
	Strict        bool
	PublicBaseURL string

	// AdminKey guards catalog changes on the admin API. Empty disables it.
	AdminKey string

	LogLevel  string
	LogFormat string

	// Voter role only
	SurveyID string
	OptionID string
}

// Broker schemes accepted by BrokerURL
var brokerSchemes = map[string]bool{
	"tcp": true, "ssl": true, "mqtt": true, "mqtts": true, "ws": true, "wss": true,
	"redis": true, "rediss": true,
	"memory": true,
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("NODE_ROLE", "admin")
	v.SetDefault("PORT", 3318)
	v.SetDefault("DATABASE_TYPE", "sqlite")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BROKER_URL", "ws://127.0.0.1:9001")
	v.SetDefault("BROKER_CLIENT_PREFIX", "encuestas_")
	v.SetDefault("BROKER_CLEAN_SESSION", true)
	v.SetDefault("BROKER_CONNECT_TIMEOUT", 4*time.Second)
	v.SetDefault("LOAD_TIMEOUT", 5*time.Second)
	v.SetDefault("SECURITY_DEDUP_WINDOW", 5*time.Second)
	v.SetDefault("STRICT_VOTES", false)
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3318")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.AutomaticEnv()
	return v
}

// ParseFlags reads flags, falling back to environment variables and then to
// defaults, and validates the result.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	env := defaults()

	fs := flag.NewFlagSet("securevote", flag.ContinueOnError)

	fs.StringVar(&cfg.Role, "role", env.GetString("NODE_ROLE"), "Node role (admin or voter)")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", env.GetInt("PORT"), "Admin API port")
	fs.StringVar(&cfg.DatabaseURL, "d", env.GetString("DATABASE_URL"), "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", env.GetString("DATABASE_TYPE"), "Database type (sqlite or postgres)")

	fs.StringVar(&cfg.BrokerURL, "broker", env.GetString("BROKER_URL"), "Broker URL (ws://, tcp://, redis://)")
	fs.StringVar(&cfg.ClientPrefix, "client-prefix", env.GetString("BROKER_CLIENT_PREFIX"), "Broker client id prefix")
	fs.BoolVar(&cfg.CleanSession, "clean-session", env.GetBool("BROKER_CLEAN_SESSION"), "Start a clean broker session")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", env.GetDuration("BROKER_CONNECT_TIMEOUT"), "Broker connect timeout")

	fs.DurationVar(&cfg.LoadTimeout, "load-timeout", env.GetDuration("LOAD_TIMEOUT"), "How long a voter waits for a snapshot")
	fs.DurationVar(&cfg.DedupWindow, "dedup-window", env.GetDuration("SECURITY_DEDUP_WINDOW"), "Security log de-duplication window")
	fs.BoolVar(&cfg.Strict, "strict", env.GetBool("STRICT_VOTES"), "Admin de-duplicates votes by identity")
	fs.StringVar(&cfg.PublicBaseURL, "base-url", env.GetString("PUBLIC_BASE_URL"), "Base URL used in vote links")
	fs.StringVar(&cfg.AdminKey, "admin-key", env.GetString("ADMIN_KEY"), "Key required by X-Admin-Key on catalog changes")

	fs.StringVar(&cfg.LogLevel, "log-level", env.GetString("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", env.GetString("LOG_FORMAT"), "Log format (text or json)")

	fs.StringVar(&cfg.SurveyID, "survey", "", "Survey to open (voter role)")
	fs.StringVar(&cfg.OptionID, "option", "", "Option to vote for (voter role)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Admin and voter keep separate stores so both can run from one directory.
	if cfg.DatabaseURL == "" && cfg.DatabaseType == "sqlite" {
		cfg.DatabaseURL = DefaultDatabaseURL(cfg.Role)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultDatabaseURL is the SQLite file used by a role when no database URL
// is configured.
func DefaultDatabaseURL(role string) string {
	return "securevote-" + role + ".db"
}

func (cfg Config) validate() error {
	switch cfg.Role {
	case "admin":
	case "voter":
		if cfg.SurveyID == "" {
			return errors.New("voter role requires -survey")
		}
	default:
		return fmt.Errorf("unknown role %q (use admin or voter)", cfg.Role)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("invalid PORT")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid BROKER_URL: %w", err)
	}
	if !brokerSchemes[u.Scheme] {
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	if cfg.ConnectTimeout <= 0 || cfg.LoadTimeout <= 0 || cfg.DedupWindow <= 0 {
		return errors.New("timeouts and windows must be positive")
	}
	return nil
}
