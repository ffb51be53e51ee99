package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to reset pflag.CommandLine for testing
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// Helper function to set os.Args for testing
func setArgs(args []string) {
	os.Args = args
}

// Helper function to clear environment variables
func clearEnvVars() {
	for _, name := range []string{
		"REDCAP_PDF_MODE", "REDCAP_PDF_API_URL", "REDCAP_PDF_API_KEY", "REDCAP_PDF_IDENTIFIER",
		"REDCAP_PDF_INPUT_PDF", "REDCAP_PDF_DIR", "REDCAP_PDF_LOGLEVEL", "REDCAP_PDF_RECORD_VARIABLE",
	} {
		os.Unsetenv(name)
	}
}

// setupLoad isolates a LoadFromFlags call in a scratch working directory
func setupLoad(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	})

	setArgs(append([]string{"redcap-pdf-autofill"}, args...))
	resetFlags()
	clearEnvVars()
	return dir
}

func writeSecrets(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultSecretsFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFlags_SecretsFile(t *testing.T) {
	dir := setupLoad(t, "--identifier", "17", "-i", "consent.pdf")
	writeSecrets(t, dir, `{"api_key": "ABCDEF0123", "url": "https://redcap.example.org/api/"}`)

	cfg, err := LoadFromFlags()
	require.NoError(t, err)

	assert.Equal(t, ModeFill, cfg.Mode)
	assert.Equal(t, "17", cfg.Identifier)
	assert.Equal(t, "consent.pdf", cfg.InputPDF)
	assert.Equal(t, DefaultRecordVariable, cfg.RecordVariable)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, "https://redcap.example.org/api/", cfg.APIURL)
	assert.Equal(t, "ABCDEF0123", cfg.APIKey)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.True(t, cfg.UseMetadata)
	assert.Equal(t, []string{"1"}, cfg.TruthyValues)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	setupLoad(t,
		"--api-url", "https://redcap.example.org/api/",
		"--api-key", "TOKEN",
		"--identifier", "S-01",
		"-v", "study_id",
		"-i", "form.pdf",
		"-o", "out/filled.pdf",
		"--timeout", "5s",
		"--use-metadata=false",
		"--truthy", "1,yes",
		"--loglevel", "debug",
		"--logformat", "json",
	)

	cfg, err := LoadFromFlags()
	require.NoError(t, err)

	assert.Equal(t, "S-01", cfg.Identifier)
	assert.Equal(t, "study_id", cfg.RecordVariable)
	assert.Equal(t, "form.pdf", cfg.InputPDF)
	assert.Equal(t, "out/filled.pdf", cfg.OutputPDF)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.UseMetadata)
	assert.Equal(t, []string{"1", "yes"}, cfg.TruthyValues)
	assert.True(t, cfg.IsDebug())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	setupLoad(t, "--mode", "stdio")
	t.Setenv("REDCAP_PDF_API_URL", "https://env.example.org/api/")
	t.Setenv("REDCAP_PDF_API_KEY", "ENVTOKEN")
	t.Setenv("REDCAP_PDF_RECORD_VARIABLE", "participant_id")

	cfg, err := LoadFromFlags()
	require.NoError(t, err)

	assert.True(t, cfg.IsStdioMode())
	assert.Equal(t, "https://env.example.org/api/", cfg.APIURL)
	assert.Equal(t, "ENVTOKEN", cfg.APIKey)
	assert.Equal(t, "participant_id", cfg.RecordVariable)
}

func TestLoadFromFlags_EnvFile(t *testing.T) {
	dir := setupLoad(t, "--mode", "stdio")
	t.Cleanup(func() {
		os.Unsetenv("REDCAP_PDF_API_URL")
		os.Unsetenv("REDCAP_PDF_API_KEY")
	})
	env := "REDCAP_PDF_API_URL=https://dotenv.example.org/api/\nREDCAP_PDF_API_KEY=DOTENV\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte(env), 0o600))

	cfg, err := LoadFromFlags()
	require.NoError(t, err)

	assert.Equal(t, "https://dotenv.example.org/api/", cfg.APIURL)
	assert.Equal(t, "DOTENV", cfg.APIKey)
}

func TestLoadFromFlags_FlagOverridesSecrets(t *testing.T) {
	dir := setupLoad(t, "--mode", "stdio", "--api-key", "FLAGTOKEN")
	writeSecrets(t, dir, `{"api_key": "FILETOKEN", "url": "https://file.example.org/api/"}`)

	cfg, err := LoadFromFlags()
	require.NoError(t, err)

	assert.Equal(t, "FLAGTOKEN", cfg.APIKey)
	assert.Equal(t, "https://file.example.org/api/", cfg.APIURL)
}

func TestLoadFromFlags_MissingCredentials(t *testing.T) {
	setupLoad(t, "--identifier", "1", "-i", "form.pdf")

	_, err := LoadFromFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API URL and key are required")
}

func TestLoadFromFlags_IncompleteSecrets(t *testing.T) {
	dir := setupLoad(t, "--identifier", "1", "-i", "form.pdf")
	writeSecrets(t, dir, `{"api_key": "", "url": ""}`)

	_, err := LoadFromFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you fill in your REDCap project's API key and URL")
}

func TestLoadFromFlags_MissingIdentifier(t *testing.T) {
	setupLoad(t, "--api-url", "https://x/api/", "--api-key", "K", "-i", "form.pdf")

	_, err := LoadFromFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--identifier is required")
}

func TestLoadFromFlags_InvalidMode(t *testing.T) {
	setupLoad(t, "--api-url", "https://x/api/", "--api-key", "K", "--mode", "batch")

	_, err := LoadFromFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be one of")
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	setupLoad(t, "--version")

	_, err := LoadFromFlags()
	assert.True(t, errors.Is(err, ErrVersionRequested))
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := writeSecrets(t, dir, `{"api_key": "K", "url": "https://x/api/"}`)
		s, err := LoadSecrets(path)
		require.NoError(t, err)
		assert.Equal(t, &Secrets{APIKey: "K", URL: "https://x/api/"}, s)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSecrets(filepath.Join(dir, "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeSecrets(t, dir, `{"api_key": `)
		_, err := LoadSecrets(path)
		assert.Error(t, err)
	})
}
