package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Source string

const (
	SourceParameterStore Source = "ssm"
	SourceSecretsManager Source = "secretsmanager"
)

type Invocation string

const (
	InvocationDirect   Invocation = "direct"
	InvocationSNS      Invocation = "sns"
	InvocationProvider Invocation = "provider"
)

type Config struct {
	PrivateKeyParameter string
	PublicKeyParameter  string
	PrivateKeySource    Source
	Invocation          Invocation

	ReportUnsupportedRequestTypes bool

	LogLevel  string
	LogPretty bool
}

func setPublicKeyParameter(cfg *Config, envValue string) error {
	cfg.PublicKeyParameter = envValue
	return nil
}

func setPrivateKeySource(cfg *Config, envValue string) error {
	switch source := Source(envValue); source {
	case SourceParameterStore, SourceSecretsManager:
		cfg.PrivateKeySource = source
		return nil
	default:
		return fmt.Errorf("invalid private key source '%s'", envValue)
	}
}

func setInvocation(cfg *Config, envValue string) error {
	switch invocation := Invocation(envValue); invocation {
	case InvocationDirect, InvocationSNS, InvocationProvider:
		cfg.Invocation = invocation
		return nil
	default:
		return fmt.Errorf("invalid invocation type '%s'", envValue)
	}
}

func setReportUnsupportedRequestTypes(cfg *Config, envValue string) error {
	boolValue, err := strconv.ParseBool(envValue)
	if err != nil {
		return fmt.Errorf("failed to parse boolean value '%s': %w", envValue, err)
	}

	cfg.ReportUnsupportedRequestTypes = boolValue
	return nil
}

func setLogLevel(cfg *Config, envValue string) error {
	cfg.LogLevel = envValue
	return nil
}

func setLogPretty(cfg *Config, envValue string) error {
	boolValue, err := strconv.ParseBool(envValue)
	if err != nil {
		return fmt.Errorf("failed to parse boolean value '%s': %w", envValue, err)
	}

	cfg.LogPretty = boolValue
	return nil
}

func defaultConfig() Config {
	return Config{
		PrivateKeySource: SourceParameterStore,
		Invocation:       InvocationDirect,
		LogLevel:         "info",
	}
}

// Load reads the configuration from the environment. PRIVATEKEY_PARAMETER is
// required, everything else falls back to a default.
func Load() (*Config, error) {
	cfg := defaultConfig()

	privateKeyParameter, found := os.LookupEnv("PRIVATEKEY_PARAMETER")
	if !found || privateKeyParameter == "" {
		return nil, errors.New("failed to retrieve PRIVATEKEY_PARAMETER environment variable")
	}
	cfg.PrivateKeyParameter = privateKeyParameter

	envs := map[string]func(*Config, string) error{
		"PUBLICKEY_PARAMETER":              setPublicKeyParameter,
		"PRIVATEKEY_SOURCE":                setPrivateKeySource,
		"INVOCATION_TYPE":                  setInvocation,
		"REPORT_UNSUPPORTED_REQUEST_TYPES": setReportUnsupportedRequestTypes,
		"LOG_LEVEL":                        setLogLevel,
		"LOG_PRETTY":                       setLogPretty,
	}

	for key, setFunc := range envs {
		envValue, found := os.LookupEnv(key)
		if found {
			if err := setFunc(&cfg, envValue); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", key, err)
			}
		}
	}

	return &cfg, nil
}
