package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	NATSURL        string        `mapstructure:"NATS_URL"`
	ClassifierURL  string        `mapstructure:"CLASSIFIER_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	NotifyStream   string        `mapstructure:"NOTIFY_STREAM"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	Dispatch Dispatch `mapstructure:",squash"`
}

// Dispatch holds the tunables of the assignment and escalation rules.
type Dispatch struct {
	SLAMinutes               int     `mapstructure:"SLA_MINUTES"`
	MinConfidence            float64 `mapstructure:"MIN_CONFIDENCE_THRESHOLD"`
	MaxDaysToFailure         float64 `mapstructure:"MAX_DAYS_TO_FAILURE"`
	MinModelR2               float64 `mapstructure:"MIN_MODEL_R2"`
	MaxPerTechnicianPerDay   int     `mapstructure:"MAX_ASSIGNMENTS_PER_TECHNICIAN_PER_DAY"`
	MaxSystemWidePerDay      int     `mapstructure:"MAX_SYSTEM_WIDE_ASSIGNMENTS_PER_DAY"`
	DeduplicationWindowHours int     `mapstructure:"DEDUPLICATION_WINDOW_HOURS"`
	CooldownPeriodHours      int     `mapstructure:"COOLDOWN_PERIOD_HOURS"`
	DefaultDurationMinutes   int     `mapstructure:"DEFAULT_DURATION_MINUTES"`
	ScheduleLeadMinutes      int     `mapstructure:"SCHEDULE_LEAD_MINUTES"`
	DefaultMaxConcurrent     int     `mapstructure:"DEFAULT_MAX_CONCURRENT"`
}

func (d Dispatch) SLA() time.Duration {
	return time.Duration(d.SLAMinutes) * time.Minute
}

func (d Dispatch) Cooldown() time.Duration {
	return time.Duration(d.CooldownPeriodHours) * time.Hour
}

func (d Dispatch) DedupWindow() time.Duration {
	return time.Duration(d.DeduplicationWindowHours) * time.Hour
}

func (d Dispatch) ScheduleLead() time.Duration {
	return time.Duration(d.ScheduleLeadMinutes) * time.Minute
}

// DefaultDispatch returns the production defaults. Load applies the same values
// through viper so either path yields identical rules.
func DefaultDispatch() Dispatch {
	return Dispatch{
		SLAMinutes:               15,
		MinConfidence:            80,
		MaxDaysToFailure:         20,
		MinModelR2:               0.7,
		MaxPerTechnicianPerDay:   3,
		MaxSystemWidePerDay:      15,
		DeduplicationWindowHours: 48,
		CooldownPeriodHours:      24,
		DefaultDurationMinutes:   30,
		ScheduleLeadMinutes:      5,
		DefaultMaxConcurrent:     2,
	}
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("NOTIFY_STREAM", "notifications")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("ADMIN_KEY", "")

	d := DefaultDispatch()
	v.SetDefault("SLA_MINUTES", d.SLAMinutes)
	v.SetDefault("MIN_CONFIDENCE_THRESHOLD", d.MinConfidence)
	v.SetDefault("MAX_DAYS_TO_FAILURE", d.MaxDaysToFailure)
	v.SetDefault("MIN_MODEL_R2", d.MinModelR2)
	v.SetDefault("MAX_ASSIGNMENTS_PER_TECHNICIAN_PER_DAY", d.MaxPerTechnicianPerDay)
	v.SetDefault("MAX_SYSTEM_WIDE_ASSIGNMENTS_PER_DAY", d.MaxSystemWidePerDay)
	v.SetDefault("DEDUPLICATION_WINDOW_HOURS", d.DeduplicationWindowHours)
	v.SetDefault("COOLDOWN_PERIOD_HOURS", d.CooldownPeriodHours)
	v.SetDefault("DEFAULT_DURATION_MINUTES", d.DefaultDurationMinutes)
	v.SetDefault("SCHEDULE_LEAD_MINUTES", d.ScheduleLeadMinutes)
	v.SetDefault("DEFAULT_MAX_CONCURRENT", d.DefaultMaxConcurrent)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
