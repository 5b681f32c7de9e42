package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"lifemap/internal/model"
)

// Config keeps runtime settings for the planner, its HTTP API and the bot.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	TelegramToken   string
	User            string
	Users           []string
	CleanupInterval time.Duration
	CompletionDelay time.Duration
	BackupRetention int
	SummaryTime     string
	Location        *time.Location
	LogLevel        slog.Level
	Areas           []model.Area
}

type areaConfig struct {
	ID     string  `mapstructure:"id"`
	Name   string  `mapstructure:"name"`
	Color  string  `mapstructure:"color"`
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Radius float64 `mapstructure:"radius"`
}

// Load reads LIFEMAP_* environment variables and, when LIFEMAP_CONFIG names one, a YAML file.
// Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIFEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "lifemap.db")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("telegram_token", "")
	v.SetDefault("user", "")
	v.SetDefault("users", []string{"Mateo", "roman", "george", "Juan"})
	v.SetDefault("cleanup_interval", "15m")
	v.SetDefault("completion_delay", "1500ms")
	v.SetDefault("backup_retention", 30)
	v.SetDefault("summary_time", "08:00")
	v.SetDefault("timezone", "Local")
	v.SetDefault("log_level", "info")

	if path := strings.TrimSpace(os.Getenv("LIFEMAP_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		DatabaseURL:     strings.TrimSpace(v.GetString("database_url")),
		HTTPAddr:        strings.TrimSpace(v.GetString("http_addr")),
		TelegramToken:   strings.TrimSpace(v.GetString("telegram_token")),
		User:            strings.TrimSpace(v.GetString("user")),
		Users:           splitList(v.GetStringSlice("users")),
		CleanupInterval: v.GetDuration("cleanup_interval"),
		CompletionDelay: v.GetDuration("completion_delay"),
		BackupRetention: v.GetInt("backup_retention"),
		SummaryTime:     strings.TrimSpace(v.GetString("summary_time")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "lifemap.db"
	}

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return cfg, fmt.Errorf("timezone: %w", err)
	}
	cfg.Location = loc

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return cfg, fmt.Errorf("log_level: %w", err)
	}

	cfg.Areas = model.DefaultAreas()
	if v.IsSet("areas") {
		var raw []areaConfig
		if err := v.UnmarshalKey("areas", &raw); err != nil {
			return cfg, fmt.Errorf("areas: %w", err)
		}
		cfg.Areas = make([]model.Area, 0, len(raw))
		for _, a := range raw {
			cfg.Areas = append(cfg.Areas, model.Area{
				ID:     model.AreaID(a.ID),
				Name:   a.Name,
				Color:  a.Color,
				Center: model.Point{X: a.X, Y: a.Y},
				Radius: a.Radius,
			})
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Now is the wall clock in the configured timezone. Day and hour gates read it.
func (c Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func (c Config) validate() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("users must not be empty")
	}
	if c.User != "" && !contains(c.Users, c.User) {
		return fmt.Errorf("user %q is not in users", c.User)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	if c.CompletionDelay < 0 {
		return fmt.Errorf("completion_delay must not be negative")
	}
	if c.BackupRetention <= 0 {
		return fmt.Errorf("backup_retention must be positive")
	}
	if len(c.Areas) == 0 {
		return fmt.Errorf("areas must not be empty")
	}
	seen := make(map[model.AreaID]bool, len(c.Areas))
	for _, a := range c.Areas {
		if !a.ID.Valid() {
			return fmt.Errorf("unknown area %q", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("area %q configured twice", a.ID)
		}
		if a.Radius <= 0 {
			return fmt.Errorf("area %q needs a positive radius", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
