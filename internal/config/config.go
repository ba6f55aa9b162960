package config

import (
	"fmt"
	"strings"
)

const secretService = "dscopilot"

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Gemini   GeminiConfig
	Ollama   OllamaConfig
	Storage  StorageConfig
	Library  LibraryConfig
	Plugin   PluginConfig
	Composer ComposerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Supported chat providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type LLMConfig struct {
	Provider string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	URL   string
	Model string
}

type StorageConfig struct {
	DataDir string
}

type LibraryConfig struct {
	Autosave bool
}

type PluginConfig struct {
	WatchInterval string
}

type ComposerConfig struct {
	MaxContextTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4200,
		},
		LLM: LLMConfig{
			Provider: ProviderGemini,
		},
		Gemini: GeminiConfig{
			Model: "gemini-1.5-flash",
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llama3.2",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Library: LibraryConfig{
			Autosave: true,
		},
		Plugin: PluginConfig{
			WatchInterval: "250ms",
		},
		Composer: ComposerConfig{
			MaxContextTokens: 2000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.dscopilot.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/dscopilot/config.json
// and secrets fall back to $XDG_DATA_HOME/dscopilot/secrets.json.
//
// Environment variables (DSCOPILOT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// LoadOptional is Load without validation. Client commands that never talk
// to the provider use it.
func LoadOptional() Config {
	cfg, _ := loadConfig(newPlatformBackend(), NewKeychain())
	return cfg
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg, err := loadConfig(b, kc)
	if err != nil {
		return Config{}, err
	}

	switch cfg.LLM.Provider {
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			msg := "missing required config: Gemini API key. " +
				"Set it via environment variable DSCOPILOT_GEMINI_API_KEY" +
				apiKeyHint()
			return Config{}, fmt.Errorf("%s", msg)
		}
	case ProviderOllama:
		if cfg.Ollama.URL == "" {
			return Config{}, fmt.Errorf("missing required config: ollama.url")
		}
	default:
		return Config{}, fmt.Errorf("invalid llm.provider %q: must be %q or %q", cfg.LLM.Provider, ProviderGemini, ProviderOllama)
	}

	return cfg, nil
}

func loadConfig(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for API key if still empty.
	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get(secretService, secretAccount("gemini.api_key")); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	return cfg, nil
}

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	v, err := secretGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return secretSet(service, account, value)
}
