// Package config provides configuration management for the literature collector.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, apart from the
// unprefixed aliases bound in bindAliases.
const EnvPrefix = "LITCOLLECT"

// Config holds all configuration for the literature collector.
type Config struct {
	// NCBI contains E-utilities and PMC endpoint settings.
	NCBI NCBIConfig `mapstructure:"ncbi"`
	// Collection contains collection run settings.
	Collection CollectionConfig `mapstructure:"collection"`
	// Output contains on-disk layout settings.
	Output OutputConfig `mapstructure:"output"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus textfile settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Validation contains content validation settings.
	Validation ValidationConfig `mapstructure:"validation"`
}

// NCBIConfig holds E-utilities client configuration.
type NCBIConfig struct {
	// APIKey is the NCBI API key (loaded from NCBI_API_KEY or API_KEY env vars only).
	APIKey string `mapstructure:"-"`
	// Email is the contact address sent with every request.
	Email string `mapstructure:"email" validate:"omitempty,email"`
	// Tool is the tool name sent with every request.
	Tool string `mapstructure:"tool"`
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url" validate:"required"`
	// OAIURL is the PMC OAI-PMH endpoint.
	OAIURL string `mapstructure:"oai_url" validate:"required"`
	// IDConvURL is the PMC ID converter endpoint.
	IDConvURL string `mapstructure:"idconv_url" validate:"required"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// RequestsPerSecond overrides the request rate. Zero selects 3 req/s
	// without an API key and 10 req/s with one.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
}

// CollectionConfig holds collection run configuration.
type CollectionConfig struct {
	// QueriesFile is the YAML query set to run. Empty runs the pilot query.
	QueriesFile string `mapstructure:"queries_file"`
	// MaxResults caps results for queries that do not set their own.
	MaxResults int `mapstructure:"max_results" validate:"min=1,max=10000"`
	// BatchSize is the number of ids per esummary or efetch request.
	BatchSize int `mapstructure:"batch_size" validate:"min=1,max=500"`
	// FullText enables full-text retrieval for records with a PMCID.
	FullText bool `mapstructure:"fulltext"`
	// FullTextSource selects efetch or oai.
	FullTextSource string `mapstructure:"fulltext_source" validate:"oneof=efetch oai"`
	// Abstracts enables abstract retrieval through efetch.
	Abstracts bool `mapstructure:"abstracts"`
	// ConvertIDs resolves PMCIDs missing from summaries through the ID converter.
	ConvertIDs bool `mapstructure:"convert_ids"`
	// Sort is the esearch sort order (relevance, pub_date, ...). Empty uses the server default.
	Sort string `mapstructure:"sort"`
	// ProgressEvery logs progress after this many records.
	ProgressEvery int `mapstructure:"progress_every" validate:"min=1"`
}

// OutputConfig holds on-disk layout configuration.
type OutputConfig struct {
	// Directory is the collection output root.
	Directory string `mapstructure:"directory" validate:"required"`
	// DedupDirectory is the deduplicated output root.
	DedupDirectory string `mapstructure:"dedup_directory" validate:"required"`
	// ReportsDirectory receives catalogs and validation reports.
	ReportsDirectory string `mapstructure:"reports_directory" validate:"required"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Textfile is the path of a node-exporter textfile written at the end of
	// a command. Empty disables metrics output.
	Textfile string `mapstructure:"textfile"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// ValidationConfig holds content validation configuration.
type ValidationConfig struct {
	// SampleSize is the number of articles validated, in sorted file order.
	SampleSize int `mapstructure:"sample_size" validate:"min=1"`
	// LowQualityThreshold flags articles scoring below it.
	LowQualityThreshold int `mapstructure:"low_quality_threshold" validate:"min=1,max=100"`
}

// Load loads configuration from a .env file, environment variables, and an
// optional YAML config file. An empty configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	// A missing .env file is fine; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	// Read config file if present
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindAliases binds the unprefixed variable names shared with other NCBI tooling.
// The prefixed name is listed first so it takes precedence.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"ncbi.email":               {"LITCOLLECT_NCBI_EMAIL", "NCBI_EMAIL", "CONTACT_EMAIL"},
		"ncbi.requests_per_second": {"LITCOLLECT_NCBI_REQUESTS_PER_SECOND", "REQUESTS_PER_SECOND"},
		"output.directory":         {"LITCOLLECT_OUTPUT_DIRECTORY", "OUTPUT_DIRECTORY"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	for _, name := range []string{EnvPrefix + "_NCBI_API_KEY", "NCBI_API_KEY", "API_KEY"} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			cfg.NCBI.APIKey = key
			return
		}
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// NCBI defaults
	v.SetDefault("ncbi.email", "")
	v.SetDefault("ncbi.tool", "literature-collector")
	v.SetDefault("ncbi.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("ncbi.oai_url", "https://www.ncbi.nlm.nih.gov/pmc/oai/oai.cgi")
	v.SetDefault("ncbi.idconv_url", "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/")
	v.SetDefault("ncbi.timeout", "30s")
	v.SetDefault("ncbi.requests_per_second", 0)

	// Collection defaults
	v.SetDefault("collection.queries_file", "")
	v.SetDefault("collection.max_results", 100)
	v.SetDefault("collection.batch_size", 200)
	v.SetDefault("collection.fulltext", true)
	v.SetDefault("collection.fulltext_source", "efetch")
	v.SetDefault("collection.abstracts", false)
	v.SetDefault("collection.convert_ids", false)
	v.SetDefault("collection.sort", "")
	v.SetDefault("collection.progress_every", 10)

	// Output defaults
	v.SetDefault("output.directory", "data/raw/pubmed")
	v.SetDefault("output.dedup_directory", "data/processed/deduplicated")
	v.SetDefault("output.reports_directory", "reports")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.namespace", "litcollect")

	// Validation defaults
	v.SetDefault("validation.sample_size", 100)
	v.SetDefault("validation.low_quality_threshold", 40)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Collection.FullTextSource = strings.ToLower(c.Collection.FullTextSource)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v (failed %q check)", configKey(fe.Namespace()), fe.Value(), fe.Tag())
		}
		return err
	}

	for name, raw := range map[string]string{
		"ncbi.base_url":   c.NCBI.BaseURL,
		"ncbi.oai_url":    c.NCBI.OAIURL,
		"ncbi.idconv_url": c.NCBI.IDConvURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid %s: %q must be an http(s) URL", name, raw)
		}
	}

	return nil
}

// configKey turns a validator namespace ("Config.ncbi.timeout") into a config key.
func configKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
