package config

import "fmt"

// Config is the umbrella configuration object loaded at startup and passed
// to the components that need each slice.
type Config struct {
	Server    *ServerConfig
	Queue     *QueueConfig
	Pipeline  *PipelineConfig
	LLM       *LLMConfig
	RAG       *RAGConfig
	Storage   *StorageConfig
	Retention *RetentionConfig
}

// Load builds a Config from the process environment. Call after any .env
// files have been applied so the variables are visible.
func Load() (*Config, error) {
	cfg := &Config{
		Server:    LoadServerConfigFromEnv(),
		Queue:     LoadQueueConfigFromEnv(),
		Pipeline:  LoadPipelineConfigFromEnv(),
		LLM:       LoadLLMConfigFromEnv(),
		RAG:       LoadRAGConfigFromEnv(),
		Storage:   LoadStorageConfigFromEnv(),
		Retention: LoadRetentionConfigFromEnv(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section that has required fields.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	return nil
}
