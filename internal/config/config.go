// Package config загружает конфигурацию из config.yaml и переменных окружения
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/analytics"
	"sensor-monitor/internal/auth"
	"sensor-monitor/internal/decimate"
	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/models"
)

// Config конфигурация приложения
type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Redis      RedisConfig           `mapstructure:"redis"`
	Storage    StorageConfig         `mapstructure:"storage"`
	Feed       FeedConfig            `mapstructure:"feed"`
	Alerting   AlertingConfig        `mapstructure:"alerting"`
	Analytics  analytics.Calibration `mapstructure:"analytics"`
	Decimation DecimationConfig      `mapstructure:"decimation"`
	Auth       auth.Config           `mapstructure:"auth"`
	Email      EmailConfig           `mapstructure:"email"`
	LogLevel   string                `mapstructure:"log_level"`
}

// ServerConfig HTTP сервер
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig хранилище показаний
type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

// Retention срок хранения истории
func (c RedisConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// StorageConfig локальная база правил и настроек
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// FeedConfig подписки на показания
type FeedConfig struct {
	Kind          string `mapstructure:"kind"`
	Mode          string `mapstructure:"mode"`
	PollSeconds   int    `mapstructure:"poll_seconds"`
	HistoryHours  int    `mapstructure:"history_hours"`
	HistoryLimit  int    `mapstructure:"history_limit"`
	PrimaryDevice string `mapstructure:"primary_device"`
	ActiveOnly    bool   `mapstructure:"active_only"`
}

// AlertingConfig движок правил
type AlertingConfig struct {
	Epsilon float64 `mapstructure:"epsilon"`
}

// DecimationConfig прореживание графиков
type DecimationConfig struct {
	QualityAware bool            `mapstructure:"quality_aware"`
	Ranges       decimate.Ranges `mapstructure:"ranges"`
}

// EmailConfig почтовый провайдер
type EmailConfig struct {
	APIKey     string `mapstructure:"api_key"`
	From       string `mapstructure:"from"`
	AppURL     string `mapstructure:"app_url"`
	Production bool   `mapstructure:"production"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.retention_hours", 24*7)

	v.SetDefault("storage.path", "sensor-monitor.db")

	v.SetDefault("feed.kind", string(models.KindMotor))
	v.SetDefault("feed.mode", string(models.DeliveryPoll))
	v.SetDefault("feed.poll_seconds", models.DefaultPollSeconds)
	v.SetDefault("feed.history_hours", decimate.DefaultRangeHours)
	v.SetDefault("feed.history_limit", 1000)
	v.SetDefault("feed.primary_device", "")
	v.SetDefault("feed.active_only", true)

	v.SetDefault("alerting.epsilon", alerting.DefaultEpsilon)

	cal := analytics.DefaultCalibration()
	v.SetDefault("analytics.confidence_weight", cal.ConfidenceWeight)
	v.SetDefault("analytics.anomaly_weight", cal.AnomalyWeight)
	v.SetDefault("analytics.vibration_weight", cal.VibrationWeight)
	v.SetDefault("analytics.anomaly_scale", cal.AnomalyScale)
	v.SetDefault("analytics.vibration_scale", cal.VibrationScale)

	v.SetDefault("decimation.quality_aware", false)

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", auth.DefaultSessionTTL)
	v.SetDefault("auth.secure_cookie", true)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from", "onboarding@resend.dev")
	v.SetDefault("email.app_url", "http://localhost:8080")
	v.SetDefault("email.production", false)

	v.SetDefault("log_level", "info")
}

// Load читает config.yaml из каталога dir (если есть) и переменные окружения.
// Имя переменной: ключ в верхнем регистре с "_" вместо ".", например REDIS_ADDR.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// исторические имена переменных
	_ = v.BindEnv("redis.retention_hours", "REDIS_RETENTION_HOURS", "METRICS_RETENTION_HOURS")
	_ = v.BindEnv("auth.session_secret", "AUTH_SESSION_SECRET", "SESSION_SECRET")
	_ = v.BindEnv("email.api_key", "EMAIL_API_KEY", "RESEND_API_KEY")
	_ = v.BindEnv("email.app_url", "EMAIL_APP_URL", "NEXT_PUBLIC_APP_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Decimation.Ranges) == 0 {
		cfg.Decimation.Ranges = decimate.DefaultRanges()
	}
	if err := restoreChannelKeys(cfg.Decimation.Ranges); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// restoreChannelKeys viper приводит ключи к нижнему регистру: gaslevel -> gasLevel
func restoreChannelKeys(ranges decimate.Ranges) error {
	known := make(map[string]models.Channel)
	for _, k := range []models.Kind{models.KindEnvironmental, models.KindMotor} {
		for _, ch := range k.Channels() {
			known[strings.ToLower(string(ch))] = ch
		}
	}
	for i, r := range ranges {
		fixed := make(map[models.Channel]float64, len(r.Thresholds))
		for key, v := range r.Thresholds {
			ch, ok := known[strings.ToLower(string(key))]
			if !ok {
				return fmt.Errorf("decimation range %dh: unknown channel %q", r.Hours, key)
			}
			fixed[ch] = v
		}
		ranges[i].Thresholds = fixed
	}
	return nil
}

// Validate проверяет согласованность конфигурации
func (c Config) Validate() error {
	if _, err := models.ParseKind(c.Feed.Kind); err != nil {
		return fmt.Errorf("feed.kind: %w", err)
	}
	if _, err := c.Feed.DeliveryMode(); err != nil {
		return fmt.Errorf("feed.mode: %w", err)
	}
	if c.Feed.HistoryHours <= 0 {
		return fmt.Errorf("feed.history_hours must be positive")
	}
	if c.Alerting.Epsilon < 0 {
		return fmt.Errorf("alerting.epsilon must not be negative")
	}
	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}
	if err := c.Decimation.Ranges.Validate(); err != nil {
		return fmt.Errorf("decimation: %w", err)
	}
	return nil
}

// DeliveryMode режим доставки по умолчанию
func (c FeedConfig) DeliveryMode() (feed.Mode, error) {
	return feed.ParseMode(c.Mode, c.PollSeconds)
}
