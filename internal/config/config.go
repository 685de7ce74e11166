package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type StorageBackend string

const (
	BackendMemory    StorageBackend = "memory"
	BackendDisk      StorageBackend = "disk"
	BackendBadger    StorageBackend = "badger"
	BackendFirestore StorageBackend = "firestore"
)

type Config struct {
	Port string

	StorageBackend StorageBackend
	DataDir        string

	GCPProjectID string
	GCPLocation  string
	ModelName    string
	UseMockLLM   bool

	AutosaveDebounce   time.Duration
	AutosaveRetryDelay time.Duration
	AutosaveMaxRetries int

	ChatBatchThreshold int
	ChatFlushInterval  time.Duration

	RequestTimeout time.Duration
}

// Load reads the optional .quietpage config file and QUIETPAGE_* env vars and
// builds the config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("storage_backend", string(BackendMemory))
	v.SetDefault("data_dir", "~/.quietpage.db")
	v.SetDefault("gcp_location", "us-central1")
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("use_mock_llm", true)
	v.SetDefault("autosave_debounce", "1s")
	v.SetDefault("autosave_retry_delay", "2s")
	v.SetDefault("autosave_max_retries", 3)
	v.SetDefault("chat_batch_threshold", 5)
	v.SetDefault("chat_flush_interval", "30s")
	v.SetDefault("request_timeout", "10s")

	v.SetConfigName(".quietpage") // .yaml is implicit
	v.SetEnvPrefix("QUIETPAGE")
	v.AutomaticEnv()
	v.AddConfigPath("./")
	v.AddConfigPath("$HOME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port: v.GetString("port"),

		StorageBackend: StorageBackend(v.GetString("storage_backend")),
		DataDir:        v.GetString("data_dir"),

		GCPProjectID: v.GetString("gcp_project"),
		GCPLocation:  v.GetString("gcp_location"),
		ModelName:    v.GetString("model_name"),
		UseMockLLM:   v.GetBool("use_mock_llm"),

		AutosaveDebounce:   v.GetDuration("autosave_debounce"),
		AutosaveRetryDelay: v.GetDuration("autosave_retry_delay"),
		AutosaveMaxRetries: v.GetInt("autosave_max_retries"),

		ChatBatchThreshold: v.GetInt("chat_batch_threshold"),
		ChatFlushInterval:  v.GetDuration("chat_flush_interval"),

		RequestTimeout: v.GetDuration("request_timeout"),
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendDisk, BackendBadger, BackendFirestore:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == BackendFirestore && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("QUIETPAGE_GCP_PROJECT must be set for the firestore backend")
	}
	if !cfg.UseMockLLM && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("QUIETPAGE_GCP_PROJECT must be set when the mock LLM is disabled")
	}

	return cfg, nil
}
