package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	// Mode constants
	ModeFill   = "fill"
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultRecordVariable = "record_id"
	DefaultOutputDir      = "./output"
	DefaultSecretsFile    = "secrets.json"
	DefaultEnvFile        = ".env"
	DefaultTimeout        = 30 * time.Second
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultMaxFileSize    = 100 * 1024 * 1024 // 100MB

	envPrefix = "REDCAP_PDF"
)

// ErrVersionRequested is returned by LoadFromFlags when --version is on the command line
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the autofill tool and its MCP server
type Config struct {
	// Run mode: one-shot fill or MCP server
	Mode string

	// Fill request (fill mode)
	Identifier     string
	RecordVariable string
	InputPDF       string
	OutputPDF      string
	OutputDir      string

	// REDCap project access
	APIURL       string
	APIKey       string
	SecretsFile  string
	Timeout      time.Duration
	UseMetadata  bool
	TruthyValues []string

	// MCP server configuration
	Host         string
	Port         int
	PDFDirectory string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:           ModeFill,
		RecordVariable: DefaultRecordVariable,
		OutputDir:      DefaultOutputDir,
		SecretsFile:    DefaultSecretsFile,
		Timeout:        DefaultTimeout,
		UseMetadata:    true,
		TruthyValues:   []string{"1"},
		Host:           DefaultHost,
		Port:           DefaultPort,
		PDFDirectory:   currentDir,
		Version:        "1.0.0",
		ServerName:     "redcap-pdf-autofill",
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		MaxFileSize:    DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags, environment variables, an optional
// .env file and the secrets file, and returns a validated configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadEnvFile(DefaultEnvFile); err != nil {
		return nil, err
	}

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if err := cfg.applySecrets(); err != nil {
		return nil, err
	}

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFile exports variables from path without overriding the environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("record-variable", cfg.RecordVariable)
	viper.SetDefault("output-dir", cfg.OutputDir)
	viper.SetDefault("secrets", cfg.SecretsFile)
	viper.SetDefault("timeout", cfg.Timeout)
	viper.SetDefault("use-metadata", cfg.UseMetadata)
	viper.SetDefault("truthy", cfg.TruthyValues)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("logformat", cfg.LogFormat)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'fill' to fill one PDF, 'stdio' or 'server' to serve MCP tools")
	pflag.String("identifier", "", "Unique ID of the REDCap record used to fill the template")
	pflag.StringP("record-variable", "v", cfg.RecordVariable, "REDCap variable that uniquely identifies each record")
	pflag.StringP("input-pdf", "i", "", "Path to the empty template PDF")
	pflag.StringP("output-pdf", "o", "", "Path of the filled PDF to create (default: generated in --output-dir)")
	pflag.String("output-dir", cfg.OutputDir, "Directory for generated output file names")
	pflag.String("secrets", cfg.SecretsFile, "JSON file holding the REDCap 'api_key' and 'url'")
	pflag.String("api-url", "", "REDCap API URL (overrides the secrets file)")
	pflag.String("api-key", "", "REDCap API token (overrides the secrets file)")
	pflag.Duration("timeout", cfg.Timeout, "Timeout for each REDCap API call")
	pflag.Bool("use-metadata", cfg.UseMetadata, "Fetch the data dictionary to resolve choice labels")
	pflag.StringSlice("truthy", cfg.TruthyValues, "Checkbox sub-variable values counted as checked")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory the MCP tools may read templates from and write into")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.String("logformat", cfg.LogFormat, "Log format (console, json)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Bool("version", false, "Print version information and exit")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "identifier", "record-variable", "input-pdf", "output-pdf", "output-dir",
		"secrets", "api-url", "api-key", "timeout", "use-metadata", "truthy",
		"host", "port", "dir", "loglevel", "logformat", "maxfilesize",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nREDCap PDF Autofill - fill a PDF form template with one REDCap record\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --identifier 17 -i consent.pdf                  "+
			"# fill into ./output/<timestamp>_consent_17.pdf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --identifier S-01 -v study_id -i f.pdf -o out.pdf # custom id variable\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio --dir=/path/to/forms               # MCP tools over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from %s):\n", DefaultEnvFile)
		fmt.Fprintf(os.Stderr, "  %s_API_URL       REDCap API URL\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_API_KEY       REDCap API token\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_MODE          Run mode\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DIR           MCP working directory\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_LOGLEVEL      Log level\n", envPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			return ErrVersionRequested
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Identifier = viper.GetString("identifier")
	cfg.RecordVariable = viper.GetString("record-variable")
	cfg.InputPDF = viper.GetString("input-pdf")
	cfg.OutputPDF = viper.GetString("output-pdf")
	cfg.OutputDir = viper.GetString("output-dir")
	cfg.SecretsFile = viper.GetString("secrets")
	cfg.APIURL = viper.GetString("api-url")
	cfg.APIKey = viper.GetString("api-key")
	cfg.Timeout = viper.GetDuration("timeout")
	cfg.UseMetadata = viper.GetBool("use-metadata")
	cfg.TruthyValues = viper.GetStringSlice("truthy")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.LogFormat = viper.GetString("logformat")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// applySecrets fills missing API credentials from the secrets file
func (c *Config) applySecrets() error {
	if c.APIURL != "" && c.APIKey != "" {
		return nil
	}
	if c.SecretsFile == "" {
		return nil
	}
	if _, err := os.Stat(c.SecretsFile); os.IsNotExist(err) {
		return nil
	}

	secrets, err := LoadSecrets(c.SecretsFile)
	if err != nil {
		return err
	}
	if c.APIURL == "" {
		c.APIURL = secrets.URL
	}
	if c.APIKey == "" {
		c.APIKey = secrets.APIKey
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeFill && c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be one of 'fill', 'stdio' or 'server'")
	}

	if c.APIURL == "" || c.APIKey == "" {
		return fmt.Errorf("REDCap API URL and key are required: fill in %s or set %s_API_URL and %s_API_KEY",
			c.SecretsFile, envPrefix, envPrefix)
	}

	if c.RecordVariable == "" {
		return errors.New("record variable cannot be empty")
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.IsFillMode() {
		if c.Identifier == "" {
			return errors.New("--identifier is required in fill mode")
		}
		if c.InputPDF == "" {
			return errors.New("--input-pdf is required in fill mode")
		}
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// The directory may be a placeholder such as ${workspaceRoot}, so it is not created here
	if !c.IsFillMode() && c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.LogFormat)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration with the API key masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Identifier: %s, RecordVariable: %s, InputPDF: %s, OutputPDF: %s, "+
		"APIURL: %s, APIKey: %s, Timeout: %s, UseMetadata: %t, PDFDirectory: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Identifier, c.RecordVariable, c.InputPDF, c.OutputPDF,
		c.APIURL, maskSecret(c.APIKey), c.Timeout, c.UseMetadata, c.PDFDirectory, c.LogLevel, c.MaxFileSize)
}

// IsFillMode returns true for a one-shot fill run
func (c *Config) IsFillMode() bool {
	return c.Mode == ModeFill
}

// IsServerMode returns true if the MCP server runs over HTTP
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the MCP server runs over standard I/O
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
