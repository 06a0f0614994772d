// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultChunkSizeTokens is the number of words per chunk when the config omits it.
	defaultChunkSizeTokens = 350
	// defaultTopK is the number of chunks retrieved per question.
	defaultTopK = 4
	// defaultContextCharLimit caps the assembled context block.
	defaultContextCharLimit = 3000
	// defaultOCRPollAttempts bounds how often a pending OCR operation is polled.
	defaultOCRPollAttempts = 10
	// defaultOCRPollInterval is the fixed wait between OCR polls.
	defaultOCRPollInterval = time.Second
	defaultDatabasePath    = "data/chat_history.db"
	defaultUploadDir       = "data/uploads"
	defaultSpeechVoice     = "en-US-JennyNeural"
	defaultSpeechLanguage  = "en-US"
	defaultSystemPrompt    = "You are a helpful AI assistant. Answer the user's questions. If context from a document is provided, use it to inform your answer."
)

// Config represents the top-level application configuration.
type Config struct {
	Hosts            []Host `json:"hosts"`
	Debug            bool   `json:"debug"`
	TimeoutSeconds   int    `json:"timeout,omitempty" mapstructure:"timeout"`
	LogFile          string `json:"logFile,omitempty"`
	ChatHost         string `json:"chatHost"`
	ChatModel        string `json:"chatModel"`
	DisableStreaming bool   `json:"disableStreaming"`

	RagEmbeddingHost      string `json:"ragEmbeddingHost"`
	RagEmbeddingModel     string `json:"ragEmbeddingModel"`
	RagEmbeddingCachePath string `json:"ragEmbeddingCachePath,omitempty"`
	RagChunkSizeTokens    int    `json:"ragChunkSizeTokens"`
	RagChunkOverlapTokens int    `json:"ragChunkOverlapTokens"`
	RagTopK               int    `json:"ragTopK"`
	RagContextCharLimit   int    `json:"ragContextCharLimit"`

	OCREndpoint       string `json:"ocrEndpoint,omitempty"`
	OCRKeyEnv         string `json:"ocrKeyEnv,omitempty"`
	OCRPollAttempts   int    `json:"ocrPollAttempts,omitempty"`
	OCRPollIntervalMs int    `json:"ocrPollIntervalMs,omitempty"`

	SpeechEndpoint string `json:"speechEndpoint,omitempty"`
	SpeechKeyEnv   string `json:"speechKeyEnv,omitempty"`
	SpeechVoice    string `json:"speechVoice,omitempty"`
	SpeechLanguage string `json:"speechLanguage,omitempty"`
	TTSEnabled     bool   `json:"ttsEnabled"`

	DatabasePath string `json:"databasePath,omitempty"`
	UploadDir    string `json:"uploadDir,omitempty"`
	ConfigPath   string `json:"-"`
}

// Host represents a single endpoint serving generation or embedding models.
type Host struct {
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Type         string     `json:"type"`
	APIKeyEnv    string     `json:"apiKeyEnv,omitempty"`
	APIVersion   string     `json:"apiVersion,omitempty"`
	Models       []string   `json:"models"`
	SystemPrompt string     `json:"systemprompt"`
	Parameters   Parameters `json:"parameters"`
}

// Parameters defines the generation parameters forwarded to a model.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" mapstructure:"top_p"`
	MaxTokens   *int     `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// APIKey resolves the host's API key from the environment.
func (h Host) APIKey() string {
	if env := strings.TrimSpace(h.APIKeyEnv); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// Kind returns the normalized host type: "azure", "openai" or "ollama".
// An empty type is treated as ollama.
func (h Host) Kind() string {
	switch t := strings.ToLower(strings.TrimSpace(h.Type)); t {
	case "", "ollama":
		return "ollama"
	case "azure", "azure-openai", "azureopenai":
		return "azure"
	default:
		return t
	}
}

// Prompt returns the host's system prompt, falling back to the default assistant prompt.
func (h Host) Prompt() string {
	if p := strings.TrimSpace(h.SystemPrompt); p != "" {
		return p
	}
	return defaultSystemPrompt
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "docchat.log"
}

// ChunkSize returns the maximum words per chunk.
func (c Config) ChunkSize() int {
	if c.RagChunkSizeTokens <= 0 {
		return defaultChunkSizeTokens
	}
	return c.RagChunkSizeTokens
}

// ChunkOverlap returns the word overlap between chunks, clamped below the chunk size.
func (c Config) ChunkOverlap() int {
	if c.RagChunkOverlapTokens <= 0 || c.RagChunkOverlapTokens >= c.ChunkSize() {
		return 0
	}
	return c.RagChunkOverlapTokens
}

// TopK returns the number of chunks retrieved per question.
func (c Config) TopK() int {
	if c.RagTopK <= 0 {
		return defaultTopK
	}
	return c.RagTopK
}

// ContextCharLimit returns the cap applied to the assembled context block.
func (c Config) ContextCharLimit() int {
	if c.RagContextCharLimit <= 0 {
		return defaultContextCharLimit
	}
	return c.RagContextCharLimit
}

// OCRAttempts returns how many times a pending OCR operation is polled.
func (c Config) OCRAttempts() int {
	if c.OCRPollAttempts <= 0 {
		return defaultOCRPollAttempts
	}
	return c.OCRPollAttempts
}

// OCRInterval returns the fixed wait between OCR polls.
func (c Config) OCRInterval() time.Duration {
	if c.OCRPollIntervalMs <= 0 {
		return defaultOCRPollInterval
	}
	return time.Duration(c.OCRPollIntervalMs) * time.Millisecond
}

// OCRKey resolves the vision API key from the environment.
func (c Config) OCRKey() string {
	return envValue(c.OCRKeyEnv, "AZURE_VISION_KEY")
}

// SpeechKey resolves the speech API key from the environment.
func (c Config) SpeechKey() string {
	return envValue(c.SpeechKeyEnv, "AZURE_SPEECH_KEY")
}

// Voice returns the text-to-speech voice name.
func (c Config) Voice() string {
	if v := strings.TrimSpace(c.SpeechVoice); v != "" {
		return v
	}
	return defaultSpeechVoice
}

// Language returns the speech recognition language.
func (c Config) Language() string {
	if v := strings.TrimSpace(c.SpeechLanguage); v != "" {
		return v
	}
	return defaultSpeechLanguage
}

// DBPath returns the chat history database path.
func (c Config) DBPath() string {
	if p := strings.TrimSpace(c.DatabasePath); p != "" {
		return p
	}
	return defaultDatabasePath
}

// UploadPath returns the directory uploaded files are copied into.
func (c Config) UploadPath() string {
	if p := strings.TrimSpace(c.UploadDir); p != "" {
		return p
	}
	return defaultUploadDir
}

// HostByName returns the configured host with the given name.
func (c Config) HostByName(name string) (Host, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Host{}, errors.New("host name is empty")
	}
	for _, host := range c.Hosts {
		if host.Name == name {
			return host, nil
		}
	}
	return Host{}, fmt.Errorf("host %q not found in config hosts", name)
}

// ChatTarget resolves the host and model used for generation. When chatHost is
// unset the first host is used; when chatModel is unset the host's first model is used.
func (c Config) ChatTarget() (Host, string, error) {
	if len(c.Hosts) == 0 {
		return Host{}, "", errors.New("config must contain at least one host")
	}
	host := c.Hosts[0]
	if strings.TrimSpace(c.ChatHost) != "" {
		h, err := c.HostByName(c.ChatHost)
		if err != nil {
			return Host{}, "", fmt.Errorf("chatHost: %w", err)
		}
		host = h
	}
	model := strings.TrimSpace(c.ChatModel)
	if model == "" && len(host.Models) > 0 {
		model = host.Models[0]
	}
	if model == "" {
		return Host{}, "", fmt.Errorf("no chat model configured for host %q", host.Name)
	}
	return host, model, nil
}

// EmbeddingTarget resolves the host and model used for embeddings.
func (c Config) EmbeddingTarget() (Host, string, error) {
	if strings.TrimSpace(c.RagEmbeddingHost) == "" {
		return Host{}, "", errors.New("ragEmbeddingHost is required")
	}
	host, err := c.HostByName(c.RagEmbeddingHost)
	if err != nil {
		return Host{}, "", fmt.Errorf("ragEmbeddingHost: %w", err)
	}
	model := strings.TrimSpace(c.RagEmbeddingModel)
	if model == "" {
		return Host{}, "", errors.New("ragEmbeddingModel is required")
	}
	return host, model, nil
}

// Load reads the application configuration from the specified path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err == nil {
		if len(config.Hosts) == 0 {
			return Config{}, errors.New("config must contain at least one host")
		}
		config.ConfigPath = path
		return config, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("no configuration file found at %q", path)
	}

	return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}

func envValue(name, fallback string) string {
	if name = strings.TrimSpace(name); name == "" {
		name = fallback
	}
	return os.Getenv(name)
}
