package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	apperrors "github.com/waqasmani/hris-autoclock/internal/shared/errors"
	"github.com/waqasmani/hris-autoclock/internal/shared/validator"
)

type Config struct {
	HRIS        HRISConfig        `mapstructure:"hris"`
	Window      WindowConfig      `mapstructure:"window"`
	Poll        PollConfig        `mapstructure:"poll"`
	Backoff     BackoffConfig     `mapstructure:"backoff"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	EventLog    EventLogConfig    `mapstructure:"event_log"`
	Ops         OpsConfig         `mapstructure:"ops"`
	Env         string            `mapstructure:"env"`
}

type HRISConfig struct {
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequireTimeIn  bool          `mapstructure:"require_time_in"`
	CircuitBreaker CBConfig      `mapstructure:"circuit_breaker"`
}

type CBConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxFailures      uint32        `mapstructure:"max_failures"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	Interval         time.Duration `mapstructure:"interval"`
}

// WindowConfig is the daily clock-out window, as wall-clock times of day.
type WindowConfig struct {
	Start    string         `mapstructure:"start" validate:"required,timeofday"`
	End      string         `mapstructure:"end" validate:"required,timeofday"`
	Timezone string         `mapstructure:"timezone"`
	Location *time.Location `mapstructure:"-"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
}

type BackoffConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Randomization   float64       `mapstructure:"randomization"`
}

type CredentialsConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type EventLogConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from the environment, after merging envFile
// (".env" when empty) into it. The result is validated; any failure is a
// CONFIG_ERROR and the process must not start.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s not loaded, using environment variables\n", envFile)
	}

	cfg := &Config{
		HRIS: HRISConfig{
			APIURL:        strings.TrimRight(getEnv("API_URL", ""), "/"),
			Timeout:       getEnvAsDuration("HRIS_TIMEOUT", 15*time.Second),
			RequireTimeIn: getEnvAsBool("REQUIRE_TIME_IN", false),
			CircuitBreaker: CBConfig{
				Enabled:          getEnvAsBool("HRIS_CIRCUIT_BREAKER_ENABLED", true),
				MaxFailures:      uint32(getEnvAsInt("HRIS_MAX_FAILURES", 5)),
				FailureThreshold: getEnvAsFloat("HRIS_FAILURE_THRESHOLD", 0.6),
				ResetTimeout:     getEnvAsDuration("HRIS_RESET_TIMEOUT", 30*time.Second),
				Interval:         getEnvAsDuration("HRIS_CB_INTERVAL", 10*time.Minute),
			},
		},
		Window: WindowConfig{
			Start:    getEnv("TIME_WINDOW_START", ""),
			End:      getEnv("TIME_WINDOW_END", ""),
			Timezone: getEnv("TIMEZONE", "Local"),
		},
		Poll: PollConfig{
			Interval: getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
			Workers:  getEnvAsInt("POLL_WORKERS", 1),
		},
		Backoff: BackoffConfig{
			Enabled:         getEnvAsBool("LOGIN_BACKOFF_ENABLED", true),
			InitialInterval: getEnvAsDuration("LOGIN_BACKOFF_INITIAL", 30*time.Second),
			MaxInterval:     getEnvAsDuration("LOGIN_BACKOFF_MAX", 15*time.Minute),
			Multiplier:      getEnvAsFloat("LOGIN_BACKOFF_MULTIPLIER", 2.0),
			Randomization:   getEnvAsFloat("LOGIN_BACKOFF_RANDOMIZATION", 0.2),
		},
		Credentials: CredentialsConfig{
			Path: getEnv("CREDENTIALS_PATH", "credentials.json"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		EventLog: EventLogConfig{
			Path:   getEnv("EVENT_LOG_PATH", "./.log"),
			Format: getEnv("EVENT_LOG_FORMAT", "json"),
		},
		Ops: OpsConfig{
			Enabled: getEnvAsBool("OPS_ENABLED", false),
			Addr:    getEnv("OPS_ADDR", "127.0.0.1:9090"),
		},
		Env: getEnv("ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Validate(c.HRIS); err != nil {
		return configError("API_URL must be an absolute http(s) URL", err)
	}
	if u, err := url.Parse(c.HRIS.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return configError("API_URL must use http or https", err)
	}
	if err := v.Validate(c.Window); err != nil {
		return configError("TIME_WINDOW_START and TIME_WINDOW_END must be HH:MM", err)
	}

	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return configError(fmt.Sprintf("TIMEZONE %q is not a known location", c.Window.Timezone), err)
	}
	c.Window.Location = loc

	start, _ := minutesOfDay(c.Window.Start)
	end, _ := minutesOfDay(c.Window.End)
	if end < start {
		return configError(fmt.Sprintf("TIME_WINDOW_END (%s) is before TIME_WINDOW_START (%s); windows spanning midnight are not supported", c.Window.End, c.Window.Start), nil)
	}

	if c.HRIS.Timeout <= 0 {
		return configError("HRIS_TIMEOUT must be greater than 0", nil)
	}
	if c.HRIS.CircuitBreaker.Enabled {
		if c.HRIS.CircuitBreaker.MaxFailures < 1 {
			return configError("HRIS_MAX_FAILURES must be at least 1 when circuit breaker is enabled", nil)
		}
		if c.HRIS.CircuitBreaker.FailureThreshold <= 0 ||
			c.HRIS.CircuitBreaker.FailureThreshold > 1.0 {
			return configError("HRIS_FAILURE_THRESHOLD must be between 0 and 1.0", nil)
		}
		if c.HRIS.CircuitBreaker.ResetTimeout <= 0 {
			return configError("HRIS_RESET_TIMEOUT must be greater than 0", nil)
		}
		if c.HRIS.CircuitBreaker.Interval <= 0 {
			return configError("HRIS_CB_INTERVAL must be greater than 0", nil)
		}
	}

	if c.Poll.Interval <= 0 {
		return configError("POLL_INTERVAL must be greater than 0", nil)
	}
	if c.Poll.Workers < 1 {
		return configError("POLL_WORKERS must be at least 1", nil)
	}

	if c.Backoff.Enabled {
		if c.Backoff.InitialInterval <= 0 {
			return configError("LOGIN_BACKOFF_INITIAL must be greater than 0", nil)
		}
		if c.Backoff.MaxInterval < c.Backoff.InitialInterval {
			return configError("LOGIN_BACKOFF_MAX cannot be less than LOGIN_BACKOFF_INITIAL", nil)
		}
		if c.Backoff.Multiplier < 1 {
			return configError("LOGIN_BACKOFF_MULTIPLIER must be at least 1", nil)
		}
		if c.Backoff.Randomization < 0 || c.Backoff.Randomization >= 1 {
			return configError("LOGIN_BACKOFF_RANDOMIZATION must be in [0, 1)", nil)
		}
		// The first retry after a failed login must fall on the next poll.
		if longest := time.Duration(float64(c.Backoff.InitialInterval) * (1 + c.Backoff.Randomization)); longest > c.Poll.Interval {
			return configError(fmt.Sprintf("LOGIN_BACKOFF_INITIAL (%s) with randomization %.2f can exceed POLL_INTERVAL (%s)",
				c.Backoff.InitialInterval, c.Backoff.Randomization, c.Poll.Interval), nil)
		}
	}

	if c.Credentials.Path == "" {
		return configError("CREDENTIALS_PATH cannot be empty", nil)
	}
	if c.EventLog.Path == "" {
		return configError("EVENT_LOG_PATH cannot be empty", nil)
	}
	if c.EventLog.Format != "json" && c.EventLog.Format != "console" {
		return configError("EVENT_LOG_FORMAT must be json or console", nil)
	}
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return configError("OPS_ADDR is required when the ops listener is enabled", nil)
	}

	return nil
}

func configError(message string, err error) error {
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, message)
	}
	return apperrors.New(apperrors.ErrCodeConfig, message)
}

// minutesOfDay converts an already validated "HH:MM" value.
func minutesOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
