package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/docbridge/docbridge/internal/embedded"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "DOCBRIDGE_"

// Unlimited disables the string length cap.
const Unlimited = "unlimited"

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Embedded   EmbeddedConfig   `yaml:"embedded"`
	Sink       SinkConfig       `yaml:"sink"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// ExtractionConfig holds the parser option records and the output settings.
type ExtractionConfig struct {
	types.ExtractionConfig `yaml:",inline"`

	// MaxStringLength caps string results, e.g. "10MB" or "unlimited".
	MaxStringLength string `yaml:"max_string_length"`
	XMLOutput       bool   `yaml:"xml_output"`
	Charset         string `yaml:"charset"`
}

// RuntimeConfig represents the script runtime settings
type RuntimeConfig struct {
	// Bundle replaces the built-in parsing bundle when set.
	Bundle           string `yaml:"bundle"`
	OCR              bool   `yaml:"ocr"`
	ReaderBufferSize string `yaml:"reader_buffer_size"`
}

// EmbeddedConfig represents embedded extraction settings
type EmbeddedConfig struct {
	Strategy     string `yaml:"strategy"`
	BatchSize    int    `yaml:"batch_size"`
	MaxDocuments int    `yaml:"max_documents"`
}

// SinkConfig represents where extracted documents are written
type SinkConfig struct {
	Directory string       `yaml:"directory"`
	S3        S3SinkConfig `yaml:"s3"`
}

// S3SinkConfig represents S3 upload settings
type S3SinkConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseCargoShip    bool   `yaml:"use_cargoship"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// Enabled reports whether an S3 destination is configured.
func (s S3SinkConfig) Enabled() bool { return s.Bucket != "" }

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Extraction: ExtractionConfig{
			ExtractionConfig: types.DefaultExtractionConfig(),
			MaxStringLength:  "10MB",
			XMLOutput:        false,
			Charset:          "UTF-8",
		},
		Runtime: RuntimeConfig{
			OCR:              false,
			ReaderBufferSize: "32KB",
		},
		Embedded: EmbeddedConfig{
			Strategy:     embedded.StrategyOptimized,
			BatchSize:    10,
			MaxDocuments: 0,
		},
		Sink: SinkConfig{
			S3: S3SinkConfig{
				Region: "us-east-1",
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9090,
				Path:      "/metrics",
				Namespace: "docbridge",
			},
		},
	}
}

// MaxLength returns the string cap in bytes, or -1 when unlimited.
func (e ExtractionConfig) MaxLength() (int32, error) {
	v := strings.TrimSpace(e.MaxStringLength)
	if v == "" || strings.EqualFold(v, Unlimited) || v == "-1" {
		return -1, nil
	}
	n, err := utils.ParseBytes(v)
	if err != nil {
		return 0, err
	}
	if n > 1<<31-1 {
		return 0, errors.Newf(errors.ErrCodeInvalidConfig, "max_string_length %s exceeds 2GB", v).
			WithComponent("config")
	}
	return int32(n), nil
}

// BufferSize returns the reader scratch size in bytes.
func (r RuntimeConfig) BufferSize() (int, error) {
	n, err := utils.ParseBytes(r.ReaderBufferSize)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	return nil
}

// envReader applies DOCBRIDGE_* variables and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.lookup(name); ok {
		*dst = v
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = b
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = n
}

func (r *envReader) fail(name, value string, err error) {
	if r.err != nil {
		return
	}
	r.err = errors.Newf(errors.ErrCodeConfigLoad, "invalid value %q for %s%s", value, EnvPrefix, name).
		WithComponent("config").
		WithCause(err)
}

// LoadFromEnv loads configuration from environment variables. The given
// dotenv files, or ./.env when none are given, are loaded first; variables
// already set in the environment win over file entries.
func (c *Configuration) LoadFromEnv(envFiles ...string) error {
	if err := loadDotEnv(envFiles); err != nil {
		return err
	}

	r := &envReader{}

	// Global settings
	r.str("LOG_LEVEL", &c.Global.LogLevel)
	r.str("LOG_FORMAT", &c.Global.LogFormat)
	r.str("LOG_FILE", &c.Global.LogFile)

	// Extraction settings
	r.str("MAX_STRING_LENGTH", &c.Extraction.MaxStringLength)
	r.boolean("XML_OUTPUT", &c.Extraction.XMLOutput)
	r.str("CHARSET", &c.Extraction.Charset)
	if v, ok := r.lookup("OCR_STRATEGY"); ok {
		s, err := types.ParsePdfOcrStrategy(v)
		if err != nil {
			r.fail("OCR_STRATEGY", v, err)
		} else {
			c.Extraction.Pdf.OcrStrategy = s
		}
	}
	r.str("OCR_LANGUAGE", &c.Extraction.Ocr.Language)

	// Runtime settings
	r.str("BUNDLE", &c.Runtime.Bundle)
	r.boolean("OCR_ENABLED", &c.Runtime.OCR)
	r.str("READER_BUFFER_SIZE", &c.Runtime.ReaderBufferSize)

	// Embedded settings
	r.str("EMBEDDED_STRATEGY", &c.Embedded.Strategy)
	r.integer("BATCH_SIZE", &c.Embedded.BatchSize)
	r.integer("MAX_DOCUMENTS", &c.Embedded.MaxDocuments)

	// Sink settings
	r.str("SINK_DIR", &c.Sink.Directory)
	r.str("S3_BUCKET", &c.Sink.S3.Bucket)
	r.str("S3_PREFIX", &c.Sink.S3.Prefix)
	r.str("S3_REGION", &c.Sink.S3.Region)
	r.str("S3_ENDPOINT", &c.Sink.S3.Endpoint)
	r.boolean("S3_FORCE_PATH_STYLE", &c.Sink.S3.ForcePathStyle)
	r.str("S3_ACCESS_KEY_ID", &c.Sink.S3.AccessKeyID)
	r.str("S3_SECRET_ACCESS_KEY", &c.Sink.S3.SecretAccessKey)
	r.boolean("S3_USE_CARGOSHIP", &c.Sink.S3.UseCargoShip)
	r.integer("S3_MAX_ATTEMPTS", &c.Sink.S3.MaxAttempts)

	// Monitoring settings
	r.boolean("METRICS_ENABLED", &c.Monitoring.Metrics.Enabled)
	r.integer("METRICS_PORT", &c.Monitoring.Metrics.Port)

	return r.err
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.NewError(errors.ErrCodeConfigLoad, "env file not found").
				WithComponent("config").
				WithContext("files", strings.Join(files, ",")).
				WithCause(err)
		}
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse env file").
			WithComponent("config").
			WithContext("files", strings.Join(files, ",")).
			WithCause(err)
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").
			WithComponent("config").
			WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeInvalidConfig, format, args...).WithComponent("config")
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("invalid log_level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Global.LogLevel)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("invalid log_format: %s (must be one of: text, json)", c.Global.LogFormat)
	}

	if _, err := c.Extraction.MaxLength(); err != nil {
		return invalid("invalid max_string_length: %s", c.Extraction.MaxStringLength)
	}
	if c.Extraction.Charset == "" {
		return invalid("charset must not be empty")
	}
	if c.Extraction.Ocr.Density <= 0 {
		return invalid("ocr density must be greater than 0")
	}

	if n, err := c.Runtime.BufferSize(); err != nil || n <= 0 {
		return invalid("invalid reader_buffer_size: %s", c.Runtime.ReaderBufferSize)
	}

	switch c.Embedded.Strategy {
	case embedded.StrategyOptimized, embedded.StrategyList:
	default:
		return invalid("invalid embedded strategy: %s (must be one of: %s, %s)",
			c.Embedded.Strategy, embedded.StrategyOptimized, embedded.StrategyList)
	}
	if c.Embedded.BatchSize <= 0 {
		return invalid("batch_size must be greater than 0")
	}
	if c.Embedded.MaxDocuments < 0 || c.Embedded.MaxDocuments > 1<<31-1 {
		return invalid("max_documents must be between 0 and %d", 1<<31-1)
	}

	if c.Sink.S3.Enabled() && c.Sink.S3.Region == "" && c.Sink.S3.Endpoint == "" {
		return invalid("s3 sink needs a region or an endpoint")
	}
	if c.Sink.S3.MaxAttempts < 0 {
		return invalid("s3 max_attempts must not be negative")
	}
	if (c.Sink.S3.AccessKeyID == "") != (c.Sink.S3.SecretAccessKey == "") {
		return invalid("s3 access_key_id and secret_access_key must be set together")
	}

	if c.Monitoring.Metrics.Enabled {
		if c.Monitoring.Metrics.Port <= 0 || c.Monitoring.Metrics.Port > 65535 {
			return invalid("invalid metrics port: %d", c.Monitoring.Metrics.Port)
		}
		if !strings.HasPrefix(c.Monitoring.Metrics.Path, "/") {
			return invalid("metrics path must start with /")
		}
	}

	return nil
}
