package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Supported broadcaster types.
	TypeQueue = "queue"
	TypeHTTP  = "http"

	// Supported queue providers.
	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// configFile represents the structure of the broadcast configuration file.
type configFile struct {
	Broadcasters []Config `json:"broadcasters" yaml:"broadcasters"`
}

// Config is a single broadcaster entry declared in the broadcast file.
type Config struct {
	ID      string       `json:"id" yaml:"id"`
	Type    string       `json:"type" yaml:"type"`
	Enabled *bool        `json:"enabled" yaml:"enabled"`
	Events  []string     `json:"events" yaml:"events"`
	Queue   *QueueConfig `json:"queue" yaml:"queue"`
	HTTP    *HTTPConfig  `json:"http" yaml:"http"`
}

// QueueConfig selects a cloud queue provider.
type QueueConfig struct {
	Provider string     `json:"provider" yaml:"provider"`
	SQS      *SQSConfig `json:"sqs" yaml:"sqs"`
	SNS      *SNSConfig `json:"sns" yaml:"sns"`
	GCP      *GCPConfig `json:"gcp" yaml:"gcp"`
}

// AWSCredentials are optional static keys. Empty keys fall back to the default AWS chain.
type AWSCredentials struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// SQSConfig holds AWS SQS specific settings.
type SQSConfig struct {
	QueueURL       string `json:"uri" yaml:"uri"`
	AWSCredentials `yaml:",inline"`
}

// SNSConfig holds AWS SNS specific settings.
type SNSConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn"`
	AWSCredentials `yaml:",inline"`
}

// GCPConfig holds the Pub/Sub topic settings.
type GCPConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPConfig holds webhook settings.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg Config) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// LoadConfigs reads broadcaster definitions from a YAML or JSON file. ${VAR} references
// are expanded from the environment before decoding.
func LoadConfigs(path string) ([]Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("broadcast file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read broadcast file: %w", err)
	}

	file, err := parseConfigFile([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	out := make([]Config, 0, len(file.Broadcasters))
	seen := make(map[string]struct{}, len(file.Broadcasters))
	for i := range file.Broadcasters {
		cfg := sanitizeConfig(file.Broadcasters[i])
		if err := validateConfig(cfg); err != nil {
			return nil, fmt.Errorf("broadcasters[%d]: %w", i, err)
		}
		if _, exists := seen[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate broadcaster id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}

// Enabled filters cfgs down to enabled entries.
func Enabled(cfgs []Config) []Config {
	out := make([]Config, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// parseConfigFile decodes the file content, trying the decoder matching ext first.
func parseConfigFile(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var file configFile
		if err := d.fn(data, &file); err != nil {
			lastErr = fmt.Errorf("decode %s broadcast file: %w", d.name, err)
			continue
		}
		return file, nil
	}
	if lastErr != nil {
		return configFile{}, lastErr
	}
	return configFile{}, fmt.Errorf("broadcast file extension %q not recognized (expected YAML or JSON)", ext)
}

// sanitizeConfig trims and normalizes the config fields.
func sanitizeConfig(cfg Config) Config {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))

	events := make([]string, 0, len(cfg.Events))
	for _, e := range cfg.Events {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			events = append(events, e)
		}
	}
	cfg.Events = events

	if cfg.Queue != nil {
		qc := *cfg.Queue
		qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
		if qc.SQS != nil {
			s := *qc.SQS
			s.QueueURL = strings.TrimSpace(s.QueueURL)
			s.AWSCredentials = sanitizeAWS(s.AWSCredentials)
			qc.SQS = &s
		}
		if qc.SNS != nil {
			s := *qc.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.AWSCredentials = sanitizeAWS(s.AWSCredentials)
			qc.SNS = &s
		}
		if qc.GCP != nil {
			g := *qc.GCP
			g.ProjectID = strings.TrimSpace(g.ProjectID)
			g.Topic = strings.TrimSpace(g.Topic)
			g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
			qc.GCP = &g
		}
		cfg.Queue = &qc
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &c
	}

	return cfg
}

func sanitizeAWS(c AWSCredentials) AWSCredentials {
	c.Region = strings.TrimSpace(c.Region)
	c.AccessKeyID = strings.TrimSpace(c.AccessKeyID)
	c.SecretAccessKey = strings.TrimSpace(c.SecretAccessKey)
	return c
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validateConfig checks that required fields are present.
func validateConfig(cfg Config) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	for _, e := range cfg.Events {
		if e != EventArticlePublished && e != EventRunSummary {
			return fmt.Errorf("event %q not supported for broadcaster %q", e, cfg.ID)
		}
	}

	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for broadcaster %q", cfg.ID)
	case TypeQueue:
		if cfg.Queue == nil {
			return fmt.Errorf("queue config required for broadcaster %q", cfg.ID)
		}
		switch cfg.Queue.Provider {
		case QueueProviderAWSSQS:
			if cfg.Queue.SQS == nil || cfg.Queue.SQS.QueueURL == "" {
				return fmt.Errorf("sqs.uri is required for broadcaster %q", cfg.ID)
			}
			return validateAWS(cfg.ID, "sqs", cfg.Queue.SQS.AWSCredentials)
		case QueueProviderAWSSNS:
			if cfg.Queue.SNS == nil || cfg.Queue.SNS.TopicARN == "" {
				return fmt.Errorf("sns.topic_arn is required for broadcaster %q", cfg.ID)
			}
			return validateAWS(cfg.ID, "sns", cfg.Queue.SNS.AWSCredentials)
		case QueueProviderGCP:
			if cfg.Queue.GCP == nil {
				return fmt.Errorf("gcp config required for broadcaster %q", cfg.ID)
			}
			if cfg.Queue.GCP.ProjectID == "" {
				return fmt.Errorf("gcp.project_id is required for broadcaster %q", cfg.ID)
			}
			if cfg.Queue.GCP.Topic == "" {
				return fmt.Errorf("gcp.topic is required for broadcaster %q", cfg.ID)
			}
		default:
			return fmt.Errorf("queue provider %q not supported for broadcaster %q", cfg.Queue.Provider, cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for broadcaster %q", cfg.ID)
		}
		if cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for broadcaster %q", cfg.ID)
		}
	default:
		return fmt.Errorf("type %q not supported for broadcaster %q", cfg.Type, cfg.ID)
	}
	return nil
}

func validateAWS(id, prefix string, c AWSCredentials) error {
	if c.Region == "" {
		return fmt.Errorf("%s.region is required for broadcaster %q", prefix, id)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("%s.access_key_id and %s.secret_access_key must be set together for broadcaster %q", prefix, prefix, id)
	}
	return nil
}
