package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	// Submit bounds how fast a single caller can open validations.
	Submit RateLimitBucketConfig `yaml:"submit"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// RawJSON carries provider-specific configuration. In YAML it is written as
// a plain mapping; it is re-encoded to JSON for the validator factories.
type RawJSON []byte

func (r *RawJSON) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*r = b
	return nil
}

type AuthConfig struct {
	// Provider selects the validator: "static" or "hmac". Empty disables auth
	// entirely, which is only acceptable in dev.
	Provider string `yaml:"provider"`

	// Config is provider-specific configuration passed to the validator factory.
	Config RawJSON `yaml:"config"`
}

type AgentSeedConfig struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	Timezone      string `yaml:"timezone"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	Env           string `yaml:"env"`

	// AgentTimeoutSeconds bounds a single agent dispatch within a validation.
	AgentTimeoutSeconds int `yaml:"agentTimeoutSeconds"`

	// CleanupIntervalSeconds is how often expired validation records are purged.
	CleanupIntervalSeconds int `yaml:"cleanupIntervalSeconds"`

	LocalArtifactsDir string `yaml:"localArtifactsDir"`

	// LLMProvider selects the advisory text generator: "ollama", "dify" or
	// empty for rule checks only.
	LLMProvider          string `yaml:"llmProvider"`
	OllamaBaseURL        string `yaml:"ollamaBaseUrl"`
	OllamaModel          string `yaml:"ollamaModel"`
	OllamaTimeoutSeconds int    `yaml:"ollamaTimeoutSeconds"`
	DifyBaseURL          string `yaml:"difyBaseUrl"`
	DifyAPIKey           string `yaml:"difyApiKey"`

	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// Agents overrides the default one-agent-per-kind seed roster.
	Agents []AgentSeedConfig `yaml:"agents"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	applyEnv(&c)
	applyDefaults(&c)

	log.Printf("Governor Config: {Port:%d Redis:%s TZ:%s Env:%s LLM:%s AgentTimeout:%ds}\n",
		c.Port, c.RedisAddr, c.Timezone, c.Env, c.LLMProvider, c.AgentTimeoutSeconds)
	return &c, nil
}

// LoadConfigOptional loads configuration from filePath when it exists. A
// missing or empty path falls back to env vars and defaults only.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	var c Config
	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("AGENT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AgentTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CLEANUP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CleanupIntervalSeconds = n
		}
	}
	if v := os.Getenv("LOCAL_ARTIFACTS_DIR"); v != "" {
		c.LocalArtifactsDir = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLMProvider = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.OllamaModel = v
	}
	if v := os.Getenv("OLLAMA_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OllamaTimeoutSeconds = n
		}
	}
	if v := os.Getenv("DIFY_BASE_URL"); v != "" {
		c.DifyBaseURL = v
	}
	if v := os.Getenv("DIFY_API_KEY"); v != "" {
		c.DifyAPIKey = v
	}
	if v := os.Getenv("AUTH_PROVIDER"); v != "" {
		c.Auth.Provider = v
	}
	if v := os.Getenv("AUTH_CONFIG"); v != "" {
		c.Auth.Config = RawJSON(v)
	}
	if v := os.Getenv("OTEL_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.AgentTimeoutSeconds <= 0 {
		c.AgentTimeoutSeconds = 300
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
	if c.LocalArtifactsDir == "" {
		c.LocalArtifactsDir = "/tmp/governor-artifacts"
	}
	if c.OllamaBaseURL == "" {
		c.OllamaBaseURL = "http://localhost:11434"
	}
	if c.OllamaModel == "" {
		c.OllamaModel = "llama3"
	}
	if c.OllamaTimeoutSeconds <= 0 {
		c.OllamaTimeoutSeconds = 60
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.Auth.Provider == "" && !dev {
		errs = append(errs, "auth.provider is required in non-dev")
	}
	if c.Auth.Provider != "" && len(c.Auth.Config) == 0 {
		errs = append(errs, "auth.config is required when auth.provider is set")
	}

	switch strings.ToLower(strings.TrimSpace(c.LLMProvider)) {
	case "", "ollama":
	case "dify":
		if strings.TrimSpace(c.DifyAPIKey) == "" {
			errs = append(errs, "difyApiKey is required when llmProvider is dify")
		}
		if c.DifyBaseURL != "" {
			u, err := url.Parse(c.DifyBaseURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, "difyBaseUrl must be a valid http(s) URL")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown llmProvider %q", c.LLMProvider))
	}

	for _, a := range c.Agents {
		if strings.TrimSpace(a.Kind) == "" {
			errs = append(errs, "agents entries require a kind")
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
