// Package main is the entry point for the imgconv CLI: an HTTP upload
// server and a local batch converter sharing one conversion pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imgconv/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg is the immutable configuration, resolved once before any command runs.
var cfg *config.Config

// stopProfiling flushes the CPU and memory profiles, if enabled.
var stopProfiling func() error

var rootCmd = &cobra.Command{
	Use:   "imgconv",
	Short: "Batch image resize, format conversion and PDF bridging",
	Long: `imgconv resizes and converts batches of images, renders PDF pages to PNG
images and assembles images into a single PDF. Run it as a web form with
"imgconv serve" or on local files with "imgconv convert".`,
	SilenceUsage: true,
}

// persistentPreRunE resolves the configuration, logger and profiling before
// any command runs. It is attached in init to avoid an initialization cycle
// through initConfig.
func persistentPreRunE(cmd *cobra.Command, args []string) error {
	if err := initConfig(); err != nil {
		return err
	}
	c, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = c
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
	memprofile, _ := cmd.Flags().GetString("memprofile")
	stop, err := startProfiling(cpuprofile, memprofile)
	if err != nil {
		return err
	}
	stopProfiling = stop
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRunE

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./imgconv.yaml or ~/.config/imgconv/imgconv.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("env-file", ".env", "dotenv file loaded into the environment if present")
	flags.String("cpuprofile", "", "write cpu profile to `file`")
	flags.String("memprofile", "", "write memory profile to `file`")

	mustBind(config.KeyLogLevel, flags.Lookup("log-level"))
	mustBind(config.KeyLogFormat, flags.Lookup("log-format"))
	mustBind(config.KeyEnvFile, flags.Lookup("env-file"))
}

func initConfig() error {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("imgconv")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "imgconv"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
		return nil
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if stopProfiling != nil {
		if perr := stopProfiling(); perr != nil {
			slog.Error("Could not write profile", "error", perr)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
