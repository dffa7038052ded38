package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_HashStoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.HashStore.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown hash store driver")
	}
	expected := `storage.hash_store.driver must be "redis" or "sqlite", got "postgres"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MinScore(t *testing.T) {
	for _, v := range []float64{-0.1, 1} {
		cfg := validConfig()
		cfg.Query.MinScore = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for min_score=%g", v)
		}
	}
}

func TestValidate_VectorizerProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Text = VectorizerConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for undefined provider")
	}

	cfg.Embedding.Providers = map[string]ProviderConfig{"openai": {APIKey: "k"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Index.HNSWM != 16 || cfg.Index.HNSWEFConstruct != 200 {
		t.Errorf("unexpected HNSW defaults: %d/%d", cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct)
	}
	if cfg.Storage.KeyPrefix != "syncdex:" {
		t.Errorf("expected KeyPrefix='syncdex:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Storage.HashStore.Driver != "redis" {
		t.Errorf("expected hash store driver redis, got %q", cfg.Storage.HashStore.Driver)
	}
	if cfg.Crawl.HeartbeatIntervalSec != 30 {
		t.Errorf("expected HeartbeatIntervalSec=30, got %d", cfg.Crawl.HeartbeatIntervalSec)
	}
	if cfg.Query.MinScore != 0 {
		t.Errorf("expected MinScore=0, got %g", cfg.Query.MinScore)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:   IndexConfig{HNSWM: 32},
		Storage: StorageConfig{KeyPrefix: "custom:", HashStore: HashStoreConfig{Driver: "sqlite"}},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Storage.HashStore.Path == "" {
		t.Error("expected a default sqlite path")
	}
}

func TestParse_IntegrationsKeepFieldOrder(t *testing.T) {
	t.Setenv("GH_TOKEN", "secret")
	raw := `
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
integrations:
  github:
    base_url: https://api.github.com
    headers:
      Authorization: "Bearer ${GH_TOKEN}"
    collections:
      issues:
        id_field: number
        request:
          endpoint: /repos/o/r/issues
          params: {per_page: "50"}
        pagination:
          kind: link
        fields:
          title: {type: string, keyword_searchable: true}
          state: {type: string, filterable: true}
          body: {type: string, vector_searchable: true, return_by_default: false}
          comments:
            type: nested
            fields:
              text: {type: string, keyword_searchable: true}
              author: {type: string}
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gh := cfg.Integrations["github"]
	if gh.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("env not expanded: %q", gh.Headers["Authorization"])
	}
	issues := gh.Collections["issues"]
	names := make([]string, len(issues.Fields))
	for i, f := range issues.Fields {
		names[i] = f.Name
	}
	if strings.Join(names, ",") != "title,state,body,comments" {
		t.Fatalf("field order lost: %v", names)
	}
	body := issues.Fields[2]
	if body.ReturnByDefault == nil || *body.ReturnByDefault {
		t.Errorf("expected return_by_default=false on body")
	}
	comments := issues.Fields[3]
	if len(comments.Fields) != 2 || comments.Fields[0].Name != "text" {
		t.Errorf("nested fields: %+v", comments.Fields)
	}
	if issues.Pagination.Kind != "link" || issues.Request.Params["per_page"] != "50" {
		t.Errorf("crawl settings: %+v %+v", issues.Pagination, issues.Request)
	}
}

func TestParse_FieldsMustBeMapping(t *testing.T) {
	raw := `
http: {port: 8080}
database: {addrs: ["x:1"]}
integrations:
  a:
    base_url: http://x
    collections:
      c:
        fields: [title]
`
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected error for list-shaped fields")
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	got := string(expandEnvVars([]byte("addr: ${SYNCDEX_TEST_UNSET:-localhost:6379}")))
	if got != "addr: localhost:6379" {
		t.Fatalf("unexpected expansion: %q", got)
	}
}
