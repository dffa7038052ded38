package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the syncdex service configuration.
type Config struct {
	HTTP         HTTPConfig                   `yaml:"http"`
	Database     DatabaseConfig               `yaml:"database"`
	Embedding    EmbeddingConfig              `yaml:"embedding"`
	Index        IndexConfig                  `yaml:"index"`
	Storage      StorageConfig                `yaml:"storage"`
	Query        QueryConfig                  `yaml:"query"`
	Crawl        CrawlConfig                  `yaml:"crawl"`
	NATS         NATSConfig                   `yaml:"nats"`
	Logging      LoggingConfig                `yaml:"logging"`
	Integrations map[string]IntegrationConfig `yaml:"integrations"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings. Both speak the same protocol via rueidis.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds HNSW build parameters and write batching.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	MaxBatchSize    int `yaml:"max_batch_size"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string          `yaml:"key_prefix"`
	HashStore HashStoreConfig `yaml:"hash_store"`
}

// HashStoreConfig selects where record content hashes live.
type HashStoreConfig struct {
	Driver string `yaml:"driver"` // redis (default), sqlite
	Path   string `yaml:"path"`   // sqlite database file
}

// EmbeddingConfig holds embedding settings: providers plus one vectorizer per modality.
type EmbeddingConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Text      VectorizerConfig          `yaml:"text"`
	Image     VectorizerConfig          `yaml:"image"`
	Cache     bool                      `yaml:"cache"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings. An empty Model disables the modality.
type VectorizerConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// Enabled reports whether the vectorizer is configured.
func (v VectorizerConfig) Enabled() bool { return v.Model != "" }

// QueryConfig holds query engine settings.
type QueryConfig struct {
	MinScore           float64 `yaml:"min_score"` // 0 disables the threshold
	MaxImageBytes      int64   `yaml:"max_image_bytes"`
	ImageFetchTimeoutS int     `yaml:"image_fetch_timeout_sec"`
}

// CrawlConfig holds crawl orchestration settings.
type CrawlConfig struct {
	HeartbeatIntervalSec int     `yaml:"heartbeat_interval_sec"`
	RequestTimeoutSec    int     `yaml:"request_timeout_sec"`
	RateLimitRPS         float64 `yaml:"rate_limit_rps"`
	RateLimitBurst       int     `yaml:"rate_limit_burst"`
}

// NATSConfig holds the crawl event publisher settings. An empty URL logs events instead.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// IntegrationConfig describes one upstream provider and the collections synced from it.
type IntegrationConfig struct {
	BaseURL     string                      `yaml:"base_url"`
	Headers     map[string]string           `yaml:"headers"`
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// CollectionConfig describes one collection: its schema and how to crawl it.
type CollectionConfig struct {
	Description string           `yaml:"description"`
	IDField     string           `yaml:"id_field"`
	Fields      FieldMap         `yaml:"fields"`
	Request     RequestConfig    `yaml:"request"`
	Pagination  PaginationConfig `yaml:"pagination"`
}

// RequestConfig is the initial upstream request of a crawl.
type RequestConfig struct {
	Method   string            `yaml:"method"`
	Endpoint string            `yaml:"endpoint"`
	Params   map[string]string `yaml:"params"`
	Headers  map[string]string `yaml:"headers"`
}

// PaginationConfig mirrors the pagination strategy descriptor.
type PaginationConfig struct {
	Kind         string `yaml:"kind"` // cursor, link, offset
	DataPath     string `yaml:"data_path"`
	CursorParam  string `yaml:"cursor_param"`
	CursorPath   string `yaml:"cursor_path"`
	LinkRel      string `yaml:"link_rel"`
	NextLinkPath string `yaml:"next_link_path"`
	OffsetParam  string `yaml:"offset_param"`
	LimitParam   string `yaml:"limit_param"`
	PageSize     int    `yaml:"page_size"`
}

// FieldConfig is one schema field as written in YAML.
type FieldConfig struct {
	Name              string   `yaml:"-"`
	Type              string   `yaml:"type"`
	Format            string   `yaml:"format"`
	Filterable        bool     `yaml:"filterable"`
	KeywordSearchable bool     `yaml:"keyword_searchable"`
	PartialMatch      bool     `yaml:"partial_match"`
	VectorSearchable  bool     `yaml:"vector_searchable"`
	Multimodal        bool     `yaml:"multimodal"`
	Hidden            bool     `yaml:"hidden"`
	ReturnByDefault   *bool    `yaml:"return_by_default"`
	Fields            FieldMap `yaml:"fields"`
}

// FieldMap is a YAML mapping of field name to FieldConfig that keeps declaration order.
type FieldMap []FieldConfig

// UnmarshalYAML decodes a mapping node pair by pair so the order survives.
func (m *FieldMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	out := make(FieldMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var f FieldConfig
		if err := node.Content[i+1].Decode(&f); err != nil {
			return fmt.Errorf("field %s: %w", node.Content[i].Value, err)
		}
		f.Name = node.Content[i].Value
		out = append(out, f)
	}
	*m = out
	return nil
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.MaxBatchSize <= 0 {
		c.Index.MaxBatchSize = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "syncdex:"
	}
	if c.Storage.HashStore.Driver == "" {
		c.Storage.HashStore.Driver = "redis"
	}
	if c.Storage.HashStore.Driver == "sqlite" && c.Storage.HashStore.Path == "" {
		c.Storage.HashStore.Path = filepath.Join("data", "hashes.db")
	}
	if c.Query.MaxImageBytes <= 0 {
		c.Query.MaxImageBytes = 10 << 20
	}
	if c.Query.ImageFetchTimeoutS <= 0 {
		c.Query.ImageFetchTimeoutS = 10
	}
	if c.Crawl.HeartbeatIntervalSec <= 0 {
		c.Crawl.HeartbeatIntervalSec = 30
	}
	if c.Crawl.RequestTimeoutSec <= 0 {
		c.Crawl.RequestTimeoutSec = 30
	}
	if c.Crawl.RateLimitRPS <= 0 {
		c.Crawl.RateLimitRPS = 5
	}
	if c.Crawl.RateLimitBurst <= 0 {
		c.Crawl.RateLimitBurst = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "syncdex"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	switch c.Storage.HashStore.Driver {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("storage.hash_store.driver must be \"redis\" or \"sqlite\", got %q", c.Storage.HashStore.Driver)
	}
	if c.Query.MinScore < 0 || c.Query.MinScore >= 1 {
		return fmt.Errorf("query.min_score must be in [0,1), got %g", c.Query.MinScore)
	}
	for name, v := range map[string]VectorizerConfig{"text": c.Embedding.Text, "image": c.Embedding.Image} {
		if !v.Enabled() {
			continue
		}
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.%s.provider %q is not defined in embedding.providers", name, v.Provider)
		}
		if v.Dimensions <= 0 {
			return fmt.Errorf("embedding.%s.dimensions must be positive", name)
		}
	}
	for name, ic := range c.Integrations {
		if ic.BaseURL == "" {
			return fmt.Errorf("integrations.%s.base_url is required", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
