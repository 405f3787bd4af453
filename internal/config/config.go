package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	LogFormat        string `mapstructure:"log_format" validate:"oneof=JSON Text"`
	LogLevel         string `mapstructure:"log_level" validate:"oneof=TRACE DEBUG INFO WARN ERROR FATAL"`
	FunctionName     string `mapstructure:"function_name"`
	RoleName         string `mapstructure:"role_name" validate:"required"`
	Architecture     string `mapstructure:"architecture" validate:"oneof=arm64 amd64"`
	ArtifactBucket   string `mapstructure:"artifact_bucket"`
	ArtifactEndpoint string `mapstructure:"artifact_endpoint" validate:"required_with=ArtifactBucket"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom binds every key to its environment variable on v, applies the
// defaults and validates the result.
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config

	loadOrDefault(v, "log_format", "AWS_LAMBDA_LOG_FORMAT", "Text")
	loadOrDefault(v, "log_level", "AWS_LAMBDA_LOG_LEVEL", "INFO")
	loadOrDefault(v, "function_name", "AWS_LAMBDA_FUNCTION_NAME", "")

	loadOrDefault(v, "role_name", "GREETER_ROLE_NAME", "greeter_execution_role")
	loadOrDefault(v, "architecture", "GREETER_ARCHITECTURE", "arm64")
	loadOrDefault(v, "artifact_bucket", "GREETER_ARTIFACT_BUCKET", "")
	loadOrDefault(v, "artifact_endpoint", "GREETER_ARTIFACT_ENDPOINT", "s3.amazonaws.com")

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	cfg.LogFormat = canonicalLogFormat(cfg.LogFormat)
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// canonicalLogFormat spells JSON and Text the way Lambda does, whatever the
// case of the input. Other values are left for validation to reject.
func canonicalLogFormat(format string) string {
	format = strings.TrimSpace(format)
	for _, known := range []string{"JSON", "Text"} {
		if strings.EqualFold(format, known) {
			return known
		}
	}
	return format
}

func loadOrDefault(v *viper.Viper, key, envVar string, defaultVal any) {
	v.SetDefault(key, defaultVal)
	// BindEnv only fails when called without a key.
	_ = v.BindEnv(key, envVar)
}
