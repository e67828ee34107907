// Package config loads the typed application configuration.
//
// Values come from, in increasing priority: built-in defaults, the YAML
// config file, and the environment (.env included). Every key can be set as
// PAPERDIGEST_<SECTION>_<KEY>; LOG_LEVEL and OUTPUT_FORMAT are also honoured
// without the prefix.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/valpere/paperdigest/internal/detector"
	"github.com/valpere/paperdigest/internal/errs"
)

const (
	DefaultPath = "config.yaml"
	EnvPrefix   = "PAPERDIGEST"
)

// Config holds all application configuration
type Config struct {
	LogLevel     string `mapstructure:"log_level"`
	LogDir       string `mapstructure:"log_dir"`
	OutputFormat string `mapstructure:"output_format"`
	OutputDir    string `mapstructure:"output_dir"`

	Translator TranslatorConfig `mapstructure:"translator"`
	Journals   JournalsConfig   `mapstructure:"journals"`
	Keywords   KeywordsConfig   `mapstructure:"keywords"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`

	// File is the config file actually read, empty when running on defaults.
	File string `mapstructure:"-"`
}

type TranslatorConfig struct {
	Provider         string        `mapstructure:"provider"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	TargetLanguage   string        `mapstructure:"target_language"`
	ValidateLanguage bool          `mapstructure:"validate_language"`

	Ollama OllamaConfig `mapstructure:"ollama"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Google GoogleConfig `mapstructure:"google"`
}

type OllamaConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	NumCtx      int     `mapstructure:"num_ctx"`
	NumPredict  int     `mapstructure:"num_predict"`
	Temperature float64 `mapstructure:"temperature"`
	// Preload loads the model before a run and unloads it afterwards.
	Preload bool `mapstructure:"preload"`
}

type OpenAIConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type GoogleConfig struct {
	Credentials string `mapstructure:"credentials"`
	ProjectID   string `mapstructure:"project_id"`
}

type JournalsConfig struct {
	ListFile            string        `mapstructure:"list_file"`
	RequestDelay        time.Duration `mapstructure:"request_delay"`
	Timeout             time.Duration `mapstructure:"timeout"`
	UserAgent           string        `mapstructure:"user_agent"`
	MaxPapersPerJournal int           `mapstructure:"max_papers_per_journal"`
	ReadabilityFallback bool          `mapstructure:"readability_fallback"`
	Extractors          []Extractor   `mapstructure:"extractors"`
}

// Extractor locates the abstract on article pages of feeds whose URL
// contains Match.
type Extractor struct {
	Match    string `mapstructure:"match"`
	Type     string `mapstructure:"type"` // class, id or css
	Selector string `mapstructure:"selector"`
}

type KeywordsConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	MaxCount    int      `mapstructure:"max_count"`
	CustomTerms []string `mapstructure:"custom_terms"`
}

type ProgressConfig struct {
	FilePath      string `mapstructure:"file_path"`
	BackupCount   int    `mapstructure:"backup_count"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

var defaultExtractors = []map[string]any{
	{"match": "meddos.org", "type": "class", "selector": "abstract"},
	{"match": "physicamedica.com", "type": "class", "selector": "abstract"},
	{"match": "wiley.com", "type": "class", "selector": "abstract-content"},
	{"match": "redjournal.org", "type": "class", "selector": "abstractSection"},
	{"match": "ro-journal.com", "type": "id", "selector": "abstract"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("output_format", "html")
	v.SetDefault("output_dir", "output")

	v.SetDefault("translator.provider", "ollama")
	v.SetDefault("translator.timeout", "60s")
	v.SetDefault("translator.max_retries", 3)
	v.SetDefault("translator.retry_delay", "2s")
	v.SetDefault("translator.target_language", "ko")
	v.SetDefault("translator.validate_language", false)

	v.SetDefault("translator.ollama.base_url", "http://localhost:11434")
	v.SetDefault("translator.ollama.model", "")
	v.SetDefault("translator.ollama.num_ctx", 4096)
	v.SetDefault("translator.ollama.num_predict", 2048)
	v.SetDefault("translator.ollama.temperature", 0.6)
	v.SetDefault("translator.ollama.preload", false)

	v.SetDefault("translator.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("translator.openai.api_key", "")
	v.SetDefault("translator.openai.model", "")
	v.SetDefault("translator.openai.max_tokens", 2048)
	v.SetDefault("translator.openai.temperature", 0.6)

	v.SetDefault("translator.google.credentials", "")
	v.SetDefault("translator.google.project_id", "")

	v.SetDefault("journals.list_file", "journal_list.txt")
	v.SetDefault("journals.request_delay", "1s")
	v.SetDefault("journals.timeout", "30s")
	v.SetDefault("journals.user_agent", "PaperSummarizer/1.0")
	v.SetDefault("journals.max_papers_per_journal", 50)
	v.SetDefault("journals.readability_fallback", false)
	v.SetDefault("journals.extractors", defaultExtractors)

	v.SetDefault("keywords.enabled", true)
	v.SetDefault("keywords.max_count", 5)
	v.SetDefault("keywords.custom_terms", []string{})

	v.SetDefault("progress.file_path", "data/progress.json")
	v.SetDefault("progress.backup_count", 5)
	v.SetDefault("progress.retention_days", 90)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.db_path", "data/paperdigest.db")

	v.SetDefault("schedule.cron", "0 7 * * *")
}

// Load reads configuration from path, CONFIG_PATH or ./config.yaml in that
// order. A missing ./config.yaml is fine; a missing file that was asked for
// by name is a Configuration error, as is any invalid value.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := true
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("output_format", EnvPrefix+"_OUTPUT_FORMAT", "OUTPUT_FORMAT")

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, errs.Configf("load config", "config file not found: %s", path)
			}
		default:
			return nil, errs.Configf("load config", "error reading config file %s: %w", path, err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Configf("load config", "error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and provider requirements.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return errs.Configf("validate config", format, args...)
	}

	t := c.Translator
	switch t.Provider {
	case "ollama":
		if t.Ollama.BaseURL == "" {
			return fail("translator.ollama.base_url required")
		}
		if !strings.HasPrefix(t.Ollama.BaseURL, "http://") && !strings.HasPrefix(t.Ollama.BaseURL, "https://") {
			return fail("invalid API URL format: %s", t.Ollama.BaseURL)
		}
		if t.Ollama.Model == "" {
			return fail("translator.ollama.model required")
		}
	case "openai":
		if t.OpenAI.APIKey == "" {
			return fail("translator.openai.api_key required")
		}
		if t.OpenAI.Model == "" {
			return fail("translator.openai.model required")
		}
	case "google":
		if t.TargetLanguage == "" {
			return fail("translator.target_language required for google")
		}
	default:
		return fail("unsupported translator provider: %q", t.Provider)
	}

	if t.Timeout <= 0 {
		return fail("translator.timeout must be positive, got: %v", t.Timeout)
	}
	if t.MaxRetries < 0 {
		return fail("translator.max_retries must be non-negative, got: %d", t.MaxRetries)
	}
	if t.RetryDelay < 0 {
		return fail("translator.retry_delay must be non-negative, got: %v", t.RetryDelay)
	}
	if t.ValidateLanguage && !detector.Supported(t.TargetLanguage) {
		return fail("translator.validate_language: cannot detect %q", t.TargetLanguage)
	}

	j := c.Journals
	if j.RequestDelay < 0 {
		return fail("journals.request_delay must be non-negative, got: %v", j.RequestDelay)
	}
	if j.Timeout <= 0 {
		return fail("journals.timeout must be positive, got: %v", j.Timeout)
	}
	if j.MaxPapersPerJournal <= 0 {
		return fail("journals.max_papers_per_journal must be positive, got: %d", j.MaxPapersPerJournal)
	}
	for i, e := range j.Extractors {
		if e.Match == "" || e.Selector == "" {
			return fail("journals.extractors[%d]: match and selector required", i)
		}
		switch e.Type {
		case "", "class", "id", "css":
		default:
			return fail("journals.extractors[%d]: unknown type %q", i, e.Type)
		}
	}

	if c.Progress.BackupCount < 0 {
		return fail("progress.backup_count must be non-negative, got: %d", c.Progress.BackupCount)
	}
	if c.Progress.RetentionDays < 0 {
		return fail("progress.retention_days must be non-negative, got: %d", c.Progress.RetentionDays)
	}
	if c.Keywords.MaxCount < 0 {
		return fail("keywords.max_count must be non-negative, got: %d", c.Keywords.MaxCount)
	}

	if err := ValidateFormat(c.OutputFormat); err != nil {
		return err
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fail("invalid schedule.cron %q: %w", c.Schedule.Cron, err)
		}
	}
	return nil
}

// ValidateFormat checks an output format name.
func ValidateFormat(format string) error {
	switch format {
	case "html", "md", "json":
		return nil
	}
	return errs.Configf("validate config", "invalid output_format: %s. Must be html, md, or json", format)
}
