// Package config implements the ambient configuration stack: env-var
// interpolation, default application, and struct validation (SPEC_FULL.md
// §10.3), covering the config shape spec.md §6 defines.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// CORS mirrors spec.md §6's `server.cors` object. Origin accepts either a
// single origin, a list, or a boolean (allow-all) — modeled as `any` since
// Go has no union type; router.ApplyCORS resolves its shape.
type CORS struct {
	Origin         any      `json:"origin,omitempty"`
	Credentials    bool     `json:"credentials,omitempty"`
	Methods        []string `json:"methods,omitempty"`
	AllowedHeaders []string `json:"allowedHeaders,omitempty"`
	ExposedHeaders []string `json:"exposedHeaders,omitempty"`
	MaxAge         int      `json:"maxAge,omitempty"`
}

type ServerConfig struct {
	Port int    `json:"port" validate:"required,min=1,max=65535"`
	Host string `json:"host" default:"0.0.0.0"`
	CORS *CORS  `json:"cors,omitempty"`
}

type PathsConfig struct {
	Actions string `json:"actions" validate:"required"`
	Flux    string `json:"flux" validate:"required"`
}

type LoggingConfig struct {
	Level string `json:"level" default:"info" validate:"omitempty,oneof=debug info warn error"`
}

// PluginConfig is one entry of spec.md §6's `plugins` map: a logical key
// to a `{type, ...opts}` record (spec.md §4.4.1).
type PluginConfig struct {
	Type string         `json:"type" validate:"required"`
	Opts map[string]any `json:"-"`
}

// Config is the root configuration shape (spec.md §6). Grounded on the
// teacher's InitializeConfig pattern (runtime/config.go): ApplyDefaults →
// merge raw values → validate, in that order.
type Config struct {
	Server  ServerConfig            `json:"server"`
	Paths   PathsConfig             `json:"paths"`
	Logging LoggingConfig           `json:"logging"`
	Plugins map[string]PluginConfig `json:"plugins"`
}

var validate = validator.New()

// envVarPattern matches `${VAR}` and `${VAR:default}` — spec.md §6
// "Environment interpolation". Grounded on the teacher's envVarPattern
// (runtime/execution.go), generalized from upper-snake-case-only variable
// names to any identifier-shaped name since spec.md doesn't restrict
// casing.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)(:[^}]*)?\}$`)

// Load reads a JSON config file, interpolates `${VAR}`/`${VAR:default}`
// placeholders from the environment, applies struct defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var document map[string]any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	interpolateEnv(document)

	var cfg Config
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := decode(document, &cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults sets struct-tag defaults, mirroring the teacher's
// ApplyDefaults (runtime/config.go), backed by the same creasty/defaults
// library.
func ApplyDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("config: applying defaults: %w", err)
	}
	return nil
}

func decode(document map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("config: building decoder: %w", err)
	}
	if err := decoder.Decode(document); err != nil {
		return fmt.Errorf("config: decoding: %w", err)
	}

	if rawPlugins, ok := document["plugins"].(map[string]any); ok {
		for key, rawPlugin := range rawPlugins {
			if m, ok := rawPlugin.(map[string]any); ok {
				entry := cfg.Plugins[key]
				entry.Opts = m
				cfg.Plugins[key] = entry
			}
		}
	}
	return nil
}

// Validate runs go-playground/validator over cfg, collecting every failed
// field into one error (mirrors the teacher's validateConfig).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("config: validation failed: %w", err)
		}
		messages := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			messages = append(messages, fmt.Sprintf("field %q failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
		}
		return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}

// interpolateEnv walks the parsed JSON document substituting `${VAR}`/
// `${VAR:default}` strings from the environment in place, before the
// typed decode happens — spec.md §6: "Before the engine receives the
// config, strings of the form ${VAR} in the config are substituted from
// environment sources."
func interpolateEnv(node any) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			v[k] = interpolateValue(val)
		}
	case []any:
		for i, val := range v {
			v[i] = interpolateValue(val)
		}
	}
}

func interpolateValue(val any) any {
	switch v := val.(type) {
	case string:
		m := envVarPattern.FindStringSubmatch(v)
		if m == nil {
			return v
		}
		name, defaultPart := m[1], m[2]
		if envVal, ok := os.LookupEnv(name); ok {
			return envVal
		}
		if defaultPart != "" {
			return strings.TrimPrefix(defaultPart, ":")
		}
		return v
	case map[string]any, []any:
		interpolateEnv(v)
		return v
	default:
		return v
	}
}
