// Package config loads clipper settings from a YAML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/publisher"
	"github.com/gn-clipper/news-clipper/internal/retry"
	"github.com/gn-clipper/news-clipper/internal/schedule"
	"github.com/gn-clipper/news-clipper/internal/scorer"
	"github.com/gn-clipper/news-clipper/pkg/providers"
	"github.com/gn-clipper/news-clipper/pkg/sink"
)

// EnvPrefix prefixes every environment override, e.g. CLIPPER_RELEVANCE_THRESHOLD.
const EnvPrefix = "CLIPPER"

// Config is the complete clipper configuration.
type Config struct {
	LogLevel           string                      `mapstructure:"log_level"`
	LogFormat          string                      `mapstructure:"log_format"`
	RelevanceThreshold int                         `mapstructure:"relevance_threshold"`
	RunTimeout         time.Duration               `mapstructure:"run_timeout"`
	MaxArticlesPerRun  int                         `mapstructure:"max_articles_per_run"`
	DefaultLookback    time.Duration               `mapstructure:"default_lookback"`
	Store              StoreConfig                 `mapstructure:"store"`
	Combinations       []domain.KeywordCombination `mapstructure:"keyword_combinations"`
	Providers          []providers.Provider        `mapstructure:"providers"`
	Naver              NaverConfig                 `mapstructure:"naver"`
	NewsSources        NewsSourcesConfig           `mapstructure:"news_sources"`
	Schedule           ScheduleConfig              `mapstructure:"schedule"`
	Scorer             ScorerConfig                `mapstructure:"scorer"`
	Sink               SinkConfig                  `mapstructure:"sink"`
	Publisher          PublisherConfig             `mapstructure:"publisher"`
	Enrich             EnrichConfig                `mapstructure:"enrich"`
	Broadcast          BroadcastConfig             `mapstructure:"broadcast"`
	Server             ServerConfig                `mapstructure:"server"`
}

// StoreConfig locates the seen-set file. Claims older than ClaimTTL are reclaimed.
type StoreConfig struct {
	Path        string        `mapstructure:"path"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	ClaimTTL    time.Duration `mapstructure:"claim_ttl"`
}

// NaverConfig holds the search API credentials shared by naver providers.
type NaverConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// NewsSourcesConfig applies to every provider.
type NewsSourcesConfig struct {
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	KeepUndated    bool          `mapstructure:"keep_undated"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ScheduleConfig lists the daily runs.
type ScheduleConfig struct {
	Timezone string          `mapstructure:"timezone"`
	Runs     []schedule.Slot `mapstructure:"runs"`
}

// ScorerConfig configures the Gemini judge and its gateway.
type ScorerConfig struct {
	APIKey            string           `mapstructure:"api_key"`
	Endpoint          string           `mapstructure:"endpoint"`
	Model             string           `mapstructure:"model"`
	Temperature       float64          `mapstructure:"temperature"`
	MaxOutputTokens   int              `mapstructure:"max_output_tokens"`
	InstructionsFile  string           `mapstructure:"instructions_file"`
	Categories        []string         `mapstructure:"categories"`
	PriorityDomains   []PriorityDomain `mapstructure:"priority_domains"`
	RequestsPerMinute float64          `mapstructure:"requests_per_minute"`
	Burst             int              `mapstructure:"burst"`
	RequestsPerDay    int              `mapstructure:"requests_per_day"`
	Timeout           time.Duration    `mapstructure:"timeout"`
	Retry             retry.Policy     `mapstructure:"retry"`

	// Instructions is read from InstructionsFile during Load.
	Instructions string `mapstructure:"-"`
}

// PriorityDomain adds Bonus to the importance of articles hosted on Domain.
// It is a list entry rather than a map key because viper splits keys on dots.
type PriorityDomain struct {
	Domain string `mapstructure:"domain"`
	Bonus  int    `mapstructure:"bonus"`
}

// PriorityBonuses returns the priority domains keyed by lowercased host.
func (c ScorerConfig) PriorityBonuses() map[string]int {
	out := make(map[string]int, len(c.PriorityDomains))
	for _, pd := range c.PriorityDomains {
		out[strings.ToLower(strings.TrimSpace(pd.Domain))] = pd.Bonus
	}
	return out
}

// SinkConfig configures the publishing sink.
type SinkConfig struct {
	Notion  NotionConfig  `mapstructure:"notion"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   retry.Policy  `mapstructure:"retry"`
}

// NotionConfig configures the Notion database sink.
type NotionConfig struct {
	APIKey     string             `mapstructure:"api_key"`
	DatabaseID string             `mapstructure:"database_id"`
	Endpoint   string             `mapstructure:"endpoint"`
	Version    string             `mapstructure:"version"`
	Properties sink.PropertyNames `mapstructure:"properties"`
}

// PublisherConfig configures record mapping.
type PublisherConfig struct {
	Regions []publisher.Region `mapstructure:"regions"`
}

// EnrichConfig configures the optional page metadata scrape.
type EnrichConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	MinBodyRunes int               `mapstructure:"min_body_runes"`
	Workers      int               `mapstructure:"workers"`
	Delay        time.Duration     `mapstructure:"delay"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Headers      map[string]string `mapstructure:"headers"`
}

// BroadcastConfig points at the optional broadcaster file.
type BroadcastConfig struct {
	File string `mapstructure:"file"`
}

// ServerConfig configures the ops endpoint of the schedule command.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// legacyEnv maps keys onto the unprefixed variable names operators already use.
var legacyEnv = map[string]string{
	"scorer.api_key":          "GOOGLE_API_KEY",
	"sink.notion.api_key":     "NOTION_API_KEY",
	"sink.notion.database_id": "NOTION_DATABASE_ID",
	"naver.client_id":         "NAVER_CLIENT_ID",
	"naver.client_secret":     "NAVER_CLIENT_SECRET",
	"log_level":               "LOG_LEVEL",
}

// Load reads and validates the configuration.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads path, or config.yaml from the working directory when path is empty, then
// .env, then the environment, without validating. Commands that only touch the seen-set
// use it so they run without API credentials.
// A missing config.yaml is not an error; a missing path is.
func Read(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDerived()
	if err := cfg.loadInstructions(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("relevance_threshold", 60)
	v.SetDefault("run_timeout", 30*time.Minute)
	v.SetDefault("max_articles_per_run", 100)
	v.SetDefault("default_lookback", 16*time.Hour)

	v.SetDefault("store.path", "data/seen.db")
	v.SetDefault("store.open_timeout", time.Second)
	v.SetDefault("store.claim_ttl", 2*time.Hour)

	v.SetDefault("naver.client_id", "")
	v.SetDefault("naver.client_secret", "")

	v.SetDefault("news_sources.allowed_domains", []string{})
	v.SetDefault("news_sources.keep_undated", false)
	v.SetDefault("news_sources.timeout", 15*time.Second)

	v.SetDefault("schedule.timezone", schedule.DefaultTimezone)

	v.SetDefault("scorer.api_key", "")
	v.SetDefault("scorer.endpoint", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("scorer.model", "gemini-2.0-flash")
	v.SetDefault("scorer.temperature", 0.3)
	v.SetDefault("scorer.max_output_tokens", 1024)
	v.SetDefault("scorer.instructions_file", "")
	v.SetDefault("scorer.categories", scorer.DefaultCategories)
	v.SetDefault("scorer.requests_per_minute", 15)
	v.SetDefault("scorer.burst", 1)
	v.SetDefault("scorer.requests_per_day", 0)
	v.SetDefault("scorer.timeout", 60*time.Second)
	setRetryDefaults(v, "scorer.retry")

	v.SetDefault("sink.notion.api_key", "")
	v.SetDefault("sink.notion.database_id", "")
	v.SetDefault("sink.notion.endpoint", "https://api.notion.com/v1")
	v.SetDefault("sink.notion.version", "2022-06-28")
	props := sink.DefaultPropertyNames()
	v.SetDefault("sink.notion.properties.title", props.Title)
	v.SetDefault("sink.notion.properties.category", props.Category)
	v.SetDefault("sink.notion.properties.region", props.Region)
	v.SetDefault("sink.notion.properties.importance", props.Importance)
	v.SetDefault("sink.notion.properties.relevance", props.Relevance)
	v.SetDefault("sink.notion.properties.media", props.Media)
	v.SetDefault("sink.notion.properties.url", props.URL)
	v.SetDefault("sink.notion.properties.done", props.Done)
	v.SetDefault("sink.notion.properties.published_at", props.PublishedAt)
	v.SetDefault("sink.notion.properties.keywords", props.Keywords)
	v.SetDefault("sink.timeout", 30*time.Second)
	setRetryDefaults(v, "sink.retry")

	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.min_body_runes", 80)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.delay", 200*time.Millisecond)
	v.SetDefault("enrich.timeout", 10*time.Second)

	v.SetDefault("broadcast.file", "")
	v.SetDefault("server.listen", ":9090")
}

func setRetryDefaults(v *viper.Viper, prefix string) {
	p := retry.DefaultPolicy()
	v.SetDefault(prefix+".max_attempts", p.MaxAttempts)
	v.SetDefault(prefix+".base_delay", p.BaseDelay)
	v.SetDefault(prefix+".max_delay", p.MaxDelay)
	v.SetDefault(prefix+".multiplier", p.Multiplier)
	v.SetDefault(prefix+".jitter", p.Jitter)
}

// applyDerived fills values that depend on other keys.
func (c *Config) applyDerived() {
	if len(c.Providers) == 0 {
		c.Providers = []providers.Provider{{ID: "google_news", Type: providers.ProviderTypeGoogleNews}}
		if c.Naver.ClientID != "" {
			c.Providers = append(c.Providers, providers.Provider{ID: "naver", Type: providers.ProviderTypeNaver})
		}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.ClientID = os.ExpandEnv(p.ClientID)
		p.ClientSecret = os.ExpandEnv(p.ClientSecret)
		if p.Type == providers.ProviderTypeNaver {
			if p.ClientID == "" {
				p.ClientID = c.Naver.ClientID
			}
			if p.ClientSecret == "" {
				p.ClientSecret = c.Naver.ClientSecret
			}
		}
	}
	if len(c.Schedule.Runs) == 0 {
		c.Schedule.Runs = schedule.DefaultSlots()
	}
	if len(c.Publisher.Regions) == 0 {
		c.Publisher.Regions = publisher.DefaultRegions()
	}
	for i := range c.Combinations {
		if c.Combinations[i].Name == "" {
			c.Combinations[i].Name = strings.Join(append(append([]string{}, c.Combinations[i].Issues...), c.Combinations[i].Regions...), "-")
		}
	}
}

func (c *Config) loadInstructions() error {
	if c.Scorer.InstructionsFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Scorer.InstructionsFile)
	if err != nil {
		return &domain.ConfigError{Field: "scorer.instructions_file", Message: err.Error()}
	}
	c.Scorer.Instructions = strings.TrimSpace(string(data))
	return nil
}

// Validate reports the first invalid or missing value as a *domain.ConfigError.
func (c *Config) Validate() error {
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 100 {
		return &domain.ConfigError{Field: "relevance_threshold", Message: fmt.Sprintf("must be within 0..100, got %d", c.RelevanceThreshold)}
	}
	if c.RunTimeout < 0 {
		return &domain.ConfigError{Field: "run_timeout", Message: "must not be negative"}
	}
	if c.DefaultLookback <= 0 {
		return &domain.ConfigError{Field: "default_lookback", Message: "must be positive"}
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return &domain.ConfigError{Field: "store.path", Message: "is required"}
	}
	if c.Store.ClaimTTL < 0 {
		return &domain.ConfigError{Field: "store.claim_ttl", Message: "must not be negative"}
	}
	if len(c.Combinations) == 0 {
		return &domain.ConfigError{Field: "keyword_combinations", Message: "at least one combination is required"}
	}
	for i, combo := range c.Combinations {
		if len(combo.Issues) == 0 {
			return &domain.ConfigError{Field: fmt.Sprintf("keyword_combinations[%d].issues", i), Message: "at least one issue term is required"}
		}
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	for _, slot := range c.Schedule.Runs {
		if _, err := slot.Spec(); err != nil {
			return &domain.ConfigError{Field: "schedule.runs", Message: err.Error()}
		}
		if slot.Lookback <= 0 {
			return &domain.ConfigError{Field: "schedule.runs", Message: fmt.Sprintf("run %q: lookback must be positive", slot.Name)}
		}
	}
	if c.Scorer.APIKey == "" {
		return &domain.ConfigError{Field: "scorer.api_key", Message: "is required (GOOGLE_API_KEY)"}
	}
	if c.Scorer.RequestsPerMinute <= 0 {
		return &domain.ConfigError{Field: "scorer.requests_per_minute", Message: "must be positive"}
	}
	for i, pd := range c.Scorer.PriorityDomains {
		if strings.TrimSpace(pd.Domain) == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("scorer.priority_domains[%d].domain", i), Message: "is required"}
		}
	}
	if len(c.Scorer.Categories) == 0 {
		return &domain.ConfigError{Field: "scorer.categories", Message: "at least one category is required"}
	}
	if c.Sink.Notion.APIKey == "" {
		return &domain.ConfigError{Field: "sink.notion.api_key", Message: "is required (NOTION_API_KEY)"}
	}
	if c.Sink.Notion.DatabaseID == "" {
		return &domain.ConfigError{Field: "sink.notion.database_id", Message: "is required (NOTION_DATABASE_ID)"}
	}
	return nil
}

func (c *Config) validateProviders() error {
	seen := make(map[string]struct{}, len(c.Providers))
	enabled := 0
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		if p.ID == "" {
			return &domain.ConfigError{Field: field + ".id", Message: "is required"}
		}
		if _, dup := seen[p.ID]; dup {
			return &domain.ConfigError{Field: field + ".id", Message: fmt.Sprintf("duplicate provider id %q", p.ID)}
		}
		seen[p.ID] = struct{}{}

		switch p.Type {
		case providers.ProviderTypeGoogleNews:
		case providers.ProviderTypeNaver:
			if p.EnabledValue() && (p.ClientID == "" || p.ClientSecret == "") {
				return &domain.ConfigError{Field: field, Message: "naver provider needs client_id and client_secret (NAVER_CLIENT_ID, NAVER_CLIENT_SECRET)"}
			}
		case providers.ProviderTypeRSS, providers.ProviderTypeSitemap:
			if p.SourceURL == "" {
				return &domain.ConfigError{Field: field + ".source_url", Message: "is required for " + p.Type}
			}
		default:
			return &domain.ConfigError{Field: field + ".type", Message: fmt.Sprintf("unsupported provider type %q", p.Type)}
		}
		if p.EnabledValue() {
			enabled++
		}
	}
	if enabled == 0 {
		return &domain.ConfigError{Field: "providers", Message: "no provider is enabled"}
	}
	return nil
}
