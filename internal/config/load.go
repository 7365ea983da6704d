package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from defaults, file, and environment.
// Resolution order (highest priority last):
// 1. Defaults
// 2. YAML config file
// 3. Environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) error {
	return loadStructFromEnv(reflect.ValueOf(cfg).Elem())
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := loadStructFromEnv(field); err != nil {
					return err
				}
			}
			continue
		}

		if value := os.Getenv(envTag); value != "" {
			if err := setField(field, value); err != nil {
				return fmt.Errorf("setting %s: %w", envTag, err)
			}
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parsing duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing int: %w", err)
			}
			field.SetInt(n)
		}
	case reflect.Int32:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("parsing int32: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parsing float64: %w", err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// configFilePath returns the path to the config file.
func configFilePath() string {
	if path := os.Getenv("REACH_CONFIG_PATH"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".reach", "config.yaml"),
		filepath.Join(home, ".reach.yaml"),
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Save writes configuration to a YAML file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetEnvDocs returns documentation for all environment variables.
func GetEnvDocs() map[string]string {
	return map[string]string{
		"REACH_EDGE_HOST":                 "Edge server bind host (default: 0.0.0.0)",
		"REACH_EDGE_PORT":                 "Edge server bind port (default: 8080)",
		"REACH_EDGE_MODEL_PATH":           "Draft model path",
		"REACH_CONFIDENCE_STRATEGY":       "Confidence strategy: max_prob, entropy, temperature, top_k_agg",
		"REACH_CLOUD_ENDPOINT":            "Cloud endpoint URL (default: http://localhost:8081)",
		"REACH_CLOUD_HOST":                "Cloud server bind host (default: 0.0.0.0)",
		"REACH_CLOUD_PORT":                "Cloud server bind port (default: 8081)",
		"REACH_GPU_OVERLOAD_THRESHOLD":    "GPU overload hard-constraint threshold percent (default: 85.0)",
		"REACH_CPU_OVERLOAD_THRESHOLD":    "CPU overload hard-constraint threshold percent (default: 95.0)",
		"REACH_WEAK_NETWORK_RTT_MS":       "Weak-network RTT threshold in ms (default: 150.0)",
		"REACH_ENABLE_NETWORK_PROBE":      "Enable the network RTT probe (default: true)",
		"REACH_ENABLE_ADAPTIVE":           "Enable AdaptiveThresholdCalculator updates (default: true)",
		"REACH_HISTORY_MAX_SIZE":         "HistoryTracker ring buffer size (default: 100)",
		"REACH_DIRECT_TIMEOUT":            "Cloud-direct inference HTTP timeout (default: 30s)",
		"REACH_CIRCUIT_BREAKER_THRESHOLD": "Consecutive failures before the cloud circuit opens (default: 5)",
		"REACH_CIRCUIT_BREAKER_TIMEOUT":   "Half-open retry delay once the circuit is open (default: 30s)",
		"REACH_AUDIT_ENABLED":             "Enable the optional cloud-side SQLite audit ledger (default: false)",
		"REACH_CONFIG_PATH":               "Path to YAML config file",
		"REACH_LOG_LEVEL":                 "Log level: debug, info, warn, error, fatal (default: info)",
		"REACH_LOG_DIR":                   "Log directory",
	}
}

// PrintEnvDocs prints environment variable documentation.
func PrintEnvDocs() {
	fmt.Println("Inference Router Environment Variables")
	fmt.Println("=======================================")
	fmt.Println()

	docs := GetEnvDocs()
	var keys []string
	for k := range docs {
		keys = append(keys, k)
	}
	for _, k := range keys {
		fmt.Printf("  %-32s %s\n", k, docs[k])
	}
}
