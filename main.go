package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ItachiCrypto/appforge-sub001/internal/config"
)

var (
	configPath string
	logLevel   string
	logVar     = &slog.LevelVar{}
)

var rootCmd = &cobra.Command{
	Use:   "appforge",
	Short: "File core for AI-built applications",
	Long: `appforge stores the source files of AI-built projects, executes file tool calls
for language models over HTTP and MCP, and sequences specification stories into
build directives.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return setLevel(logLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("APPFORGE_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	setupLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger installs a tint handler on stderr. Logs never go to stdout,
// which carries the MCP stdio transport.
func setupLogger() {
	logVar.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      logVar,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch v := a.Value.Any().(type) {
			case string:
				if v == "" {
					return slog.Attr{}
				}
			case time.Duration:
				if v == 0 {
					return slog.Attr{}
				}
			case nil:
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

func setLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		logVar.Set(slog.LevelDebug)
	case "", "info":
		logVar.Set(slog.LevelInfo)
	case "warn", "warning":
		logVar.Set(slog.LevelWarn)
	case "error":
		logVar.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// loadConfig reads the config file and applies its log level unless the flag
// already set one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		if err := setLevel(cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
