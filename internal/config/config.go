// Package config builds the immutable runtime configuration for imgconv.
//
// Values come from built-in defaults, an optional YAML file, a .env file,
// IMGCONV_* environment variables and CLI flags, in increasing precedence.
// The resulting Config is constructed once at startup and never mutated.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. IMGCONV_ADDR.
const EnvPrefix = "IMGCONV"

// Viper keys.
const (
	KeyAddr               = "addr"
	KeyUploadDir          = "upload_dir"
	KeyMaxUploadBytes     = "max_upload_bytes"
	KeyMaxMultipartMemory = "max_multipart_memory"
	KeyPDFEnabled         = "pdf_enabled"
	KeyJPEGQuality        = "jpeg_quality"
	KeyRenderDPI          = "render_dpi"
	KeyResample           = "resample"
	KeyValidatePDF        = "validate_pdf"
	KeyMaxPixels          = "max_pixels"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
	KeyReadTimeout        = "read_timeout"
	KeyWriteTimeout       = "write_timeout"
	KeyEnvFile            = "env_file"
)

// imageExtensions is the allow-list of the image-only variant.
var imageExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff", "webp"}

// Config holds all configuration for the application.
type Config struct {
	// Server
	Addr               string
	UploadDir          string
	MaxUploadBytes     int64
	MaxMultipartMemory int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	// Conversion
	PDFEnabled  bool
	JPEGQuality int
	RenderDPI   float64
	Resample    string
	ValidatePDF bool
	MaxPixels   int64 // width*height cap for decoded, resized and rendered images

	// Logging
	LogLevel  string
	LogFormat string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":5000")
	v.SetDefault(KeyUploadDir, "uploads")
	v.SetDefault(KeyMaxUploadBytes, int64(16<<20)) // 16 MiB
	v.SetDefault(KeyMaxMultipartMemory, int64(8<<20))
	v.SetDefault(KeyReadTimeout, 30*time.Second)
	v.SetDefault(KeyWriteTimeout, 30*time.Second)
	v.SetDefault(KeyPDFEnabled, true)
	v.SetDefault(KeyJPEGQuality, 90)
	v.SetDefault(KeyRenderDPI, 200.0)
	v.SetDefault(KeyResample, "catmullrom")
	v.SetDefault(KeyValidatePDF, true)
	v.SetDefault(KeyMaxPixels, int64(50_000_000))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyEnvFile, ".env")
}

// Default returns the configuration produced by the built-in defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	return fromViper(v)
}

// Load reads the .env file named by env_file (if it exists) into the process
// environment, then resolves every key from v with IMGCONV_* overrides.
// The caller owns any config file and flag bindings on v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	envFile := v.GetString(KeyEnvFile)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading %s: %w", envFile, err)
			}
			slog.Debug("No env file found", "path", envFile)
		} else {
			slog.Debug("Loaded env file", "path", envFile)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Addr:               v.GetString(KeyAddr),
		UploadDir:          v.GetString(KeyUploadDir),
		MaxUploadBytes:     v.GetInt64(KeyMaxUploadBytes),
		MaxMultipartMemory: v.GetInt64(KeyMaxMultipartMemory),
		ReadTimeout:        v.GetDuration(KeyReadTimeout),
		WriteTimeout:       v.GetDuration(KeyWriteTimeout),
		PDFEnabled:         v.GetBool(KeyPDFEnabled),
		JPEGQuality:        v.GetInt(KeyJPEGQuality),
		RenderDPI:          v.GetFloat64(KeyRenderDPI),
		Resample:           strings.ToLower(v.GetString(KeyResample)),
		ValidatePDF:        v.GetBool(KeyValidatePDF),
		MaxPixels:          v.GetInt64(KeyMaxPixels),
		LogLevel:           strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:          strings.ToLower(v.GetString(KeyLogFormat)),
	}
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	switch {
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyMaxUploadBytes, c.MaxUploadBytes)
	case c.MaxMultipartMemory <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyMaxMultipartMemory, c.MaxMultipartMemory)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("%s must be within 1..100, got %d", KeyJPEGQuality, c.JPEGQuality)
	case c.RenderDPI <= 0:
		return fmt.Errorf("%s must be positive, got %v", KeyRenderDPI, c.RenderDPI)
	case c.MaxPixels <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyMaxPixels, c.MaxPixels)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// AllowedExtensions returns the lower-case extension allow-list. pdf is
// included only when PDF support is enabled.
func (c *Config) AllowedExtensions() []string {
	exts := append([]string(nil), imageExtensions...)
	if c.PDFEnabled {
		exts = append(exts, "pdf")
	}
	return exts
}

// ArchiveName is the download name of multi-file ZIP responses.
func (c *Config) ArchiveName() string {
	if c.PDFEnabled {
		return "converted_files.zip"
	}
	return "images.zip"
}

// ParseLevel maps a log_level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%s must be debug, info, warn or error, got %q", KeyLogLevel, s)
}
