package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradesim/market"
)

// EnvPrefix scopes environment overrides, e.g. TRADESIM_RUN_MODE=lenient.
const EnvPrefix = "TRADESIM"

// Load reads a YAML or JSON config file over Default(), applies environment
// overrides and validates the result.
func Load(path string) (RunConfig, error) {
	if path == "" {
		return RunConfig{}, fmt.Errorf("config path cannot be empty")
	}
	v, err := newViper()
	if err != nil {
		return RunConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config file: %w", err)
	}
	settings, err := decodeYAML(data)
	if err != nil {
		return RunConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := v.MergeConfigMap(settings); err != nil {
		return RunConfig{}, fmt.Errorf("merge config file: %w", err)
	}
	return decode(v)
}

// decodeYAML parses YAML (or JSON) into a settings map. Timestamps stay
// strings so that the decode hook sees exactly what was written and can
// reject values without an offset.
func decodeYAML(data []byte) (map[string]any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]any{}
	if root.Kind == 0 {
		return out, nil
	}
	keepTimestampsAsStrings(&root)
	if err := root.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func keepTimestampsAsStrings(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		keepTimestampsAsStrings(c)
	}
}

// FromEnv builds a configuration from defaults and environment overrides
// only.
func FromEnv() (RunConfig, error) {
	v, err := newViper()
	if err != nil {
		return RunConfig{}, err
	}
	return decode(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seed every key from the defaults so AutomaticEnv can see them.
	raw, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	defaults, err := decodeYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}
	v.SetDefault("run.id", "")
	v.SetDefault("orders.exit_horizon", "")
	return v, nil
}

func decode(v *viper.Viper) (RunConfig, error) {
	var cfg RunConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			timestampHook(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return RunConfig{}, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// timestampHook decodes RFC3339 strings into time.Time and refuses values
// without an explicit offset.
func timestampHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if v == "" || v == "0001-01-01T00:00:00Z" {
				return time.Time{}, nil
			}
			return market.ParseTimestamp(v)
		case time.Time:
			if v.IsZero() {
				return v, nil
			}
			if err := market.CheckTimestamp(v); err != nil {
				return nil, err
			}
			return v, nil
		}
		return data, nil
	}
}

// S3Credentials returns the static object store credentials from
// TRADESIM_S3_ACCESS_KEY and TRADESIM_S3_SECRET_KEY. They are kept out of
// RunConfig so they never reach run_meta.json or the fingerprint.
func S3Credentials() (accessKey, secretKey string) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v.GetString("s3_access_key"), v.GetString("s3_secret_key")
}
