package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	// Point env_file at a path that never exists so a stray .env cannot leak in.
	v.Set(KeyEnvFile, filepath.Join(t.TempDir(), "missing.env"))
	return v
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 90, cfg.JPEGQuality)
	assert.Equal(t, 200.0, cfg.RenderDPI)
	assert.True(t, cfg.PDFEnabled)
	assert.True(t, cfg.ValidatePDF)
	assert.Equal(t, int64(50_000_000), cfg.MaxPixels)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IMGCONV_ADDR", ":9999")
	t.Setenv("IMGCONV_JPEG_QUALITY", "75")
	t.Setenv("IMGCONV_PDF_ENABLED", "false")

	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 75, cfg.JPEGQuality)
	assert.False(t, cfg.PDFEnabled)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("IMGCONV_RENDER_DPI=96\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("IMGCONV_RENDER_DPI") })

	v := viper.New()
	v.Set(KeyEnvFile, envPath)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 96.0, cfg.RenderDPI)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		errMsg string
	}{
		{name: "jpeg quality too high", key: "IMGCONV_JPEG_QUALITY", value: "101", errMsg: KeyJPEGQuality},
		{name: "zero upload cap", key: "IMGCONV_MAX_UPLOAD_BYTES", value: "0", errMsg: KeyMaxUploadBytes},
		{name: "zero pixel cap", key: "IMGCONV_MAX_PIXELS", value: "0", errMsg: KeyMaxPixels},
		{name: "negative dpi", key: "IMGCONV_RENDER_DPI", value: "-1", errMsg: KeyRenderDPI},
		{name: "unknown log level", key: "IMGCONV_LOG_LEVEL", value: "loud", errMsg: KeyLogLevel},
		{name: "unknown log format", key: "IMGCONV_LOG_FORMAT", value: "xml", errMsg: KeyLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(newTestViper(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAllowedExtensions(t *testing.T) {
	cfg := Default()
	assert.Contains(t, cfg.AllowedExtensions(), "pdf")
	assert.Equal(t, "converted_files.zip", cfg.ArchiveName())

	cfg.PDFEnabled = false
	assert.NotContains(t, cfg.AllowedExtensions(), "pdf")
	assert.Len(t, cfg.AllowedExtensions(), 7)
	assert.Equal(t, "images.zip", cfg.ArchiveName())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
	assert.Contains(t, out, `"k":"v"`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("nope")
	assert.Error(t, err)
}
