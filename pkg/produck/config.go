package produck

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/guide"
	"github.com/NissanArmada/Produck/pkg/validate"
)

type Config struct {
	Form         FormConfig            `mapstructure:"form"`
	Validation   validate.ClientConfig `mapstructure:"validation"`
	Cooldown     CooldownConfig        `mapstructure:"cooldown"`
	Transports   TransportsConfig      `mapstructure:"transports"`
	Confirmation ConfirmationConfig    `mapstructure:"confirmation"`
	Session      SessionConfig         `mapstructure:"session"`
	Environment  string                `mapstructure:"environment"`
	LogLevel     string                `mapstructure:"log_level"`
	LogFormat    string                `mapstructure:"log_format"`
	Privacy      PrivacyConfig         `mapstructure:"privacy"`
}

type FieldConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
}

// FormConfig lists the fields a guided fill walks, in order.
type FormConfig struct {
	Fields []FieldConfig `mapstructure:"fields"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ConfirmationConfig struct {
	Mode string `mapstructure:"mode"`
}

// CooldownConfig selects where the validation rate-limit deadline persists.
// Empty store_path keeps it in memory.
type CooldownConfig struct {
	StorePath string `mapstructure:"store_path"`
}

type SessionConfig struct {
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`
	RetryBackoffMS   int `mapstructure:"retry_backoff_ms"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("validation.path", "/api/v1/validate-provisional")
	v.SetDefault("validation.timeout_ms", 10000)
	v.SetDefault("cooldown.store_path", "")
	v.SetDefault("transports.provider", "mock")
	v.SetDefault("confirmation.mode", "optimistic")
	v.SetDefault("session.retry_max_attempts", 2)
	v.SetDefault("session.retry_backoff_ms", 200)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	switch guide.Mode(strings.TrimSpace(c.Confirmation.Mode)) {
	case guide.ModeOptimistic, guide.ModeExplicit, "":
	default:
		return fmt.Errorf("confirmation.mode must be %q or %q", guide.ModeOptimistic, guide.ModeExplicit)
	}
	for i, f := range c.Form.Fields {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("form.fields[%d].id is required", i)
		}
	}
	return nil
}

// FieldIDs returns the configured fill order.
func (c *Config) FieldIDs() []form.FieldID {
	out := make([]form.FieldID, 0, len(c.Form.Fields))
	for _, f := range c.Form.Fields {
		out = append(out, form.FieldID(f.ID))
	}
	return out
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
