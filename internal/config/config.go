package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MCP client transport types.
const (
	ClientTypeSSE            = "sse"
	ClientTypeStreamableHTTP = "streamable_http"
	ClientTypeStdio          = "stdio"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Server     ServerConfig
	Log        LogConfig
	History    HistoryConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the chat model configuration
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Organization   string        `mapstructure:"organization"`
	Model          string        `mapstructure:"model"`
	Temperature    float32       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	N              int           `mapstructure:"n"`
	Stop           []string      `mapstructure:"stop"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HistoryConfig holds the conversation store configuration
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// MCPServerConfig describes one MCP server to connect tools from
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// Load reads config.yaml from CONFIG_PATH or the working directory.
// OPENAI_API_KEY in the environment takes precedence over llm.api_key.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if len(config.MCPServers) > 0 {
		if err := restoreEnvCase(v.ConfigFileUsed(), &config); err != nil {
			return nil, err
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}

	return &config, nil
}

// restoreEnvCase re-reads the MCP server env sections with a case-preserving
// yaml pass. Viper lowercases every map key when it reads the file, which
// would mangle env variable names passed to stdio MCP subprocesses.
func restoreEnvCase(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var shadow struct {
		MCPServers []struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"mcp_servers"`
	}
	if err := yaml.Unmarshal(raw, &shadow); err != nil {
		return err
	}
	for i := range cfg.MCPServers {
		if i < len(shadow.MCPServers) && len(shadow.MCPServers[i].Env) > 0 {
			cfg.MCPServers[i].Env = shadow.MCPServers[i].Env
		}
	}
	return nil
}
