package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fmwatch/fmwatch/internal/client"
	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "fmwatch",
	Short: "Watch and drive file-manager background tasks",
	Long: `fmwatch is a client for file-manager servers that run copy and move
jobs in the background. It tracks task progress over the server's query
endpoint and push stream, resolves file-name conflicts, and uploads files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := events.ParseLevel(cfg.Log.Level)
		if verbose {
			level = events.DebugLevel
		}

		output := os.Stderr
		if cfg.Log.File != "" {
			f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			output = f
		}

		logger = events.NewLogger(level, cfg.Log.Format, output)
		apiClient = client.New(cfg, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			_ = apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default searches ./fmwatch.json, ~/.config/fmwatch)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func printError(format string, args ...interface{}) {
	color.Red("Error: "+format, args...)
}

func printSuccess(format string, args ...interface{}) {
	color.Green(format, args...)
}

func printInfo(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !jsonOutput {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
