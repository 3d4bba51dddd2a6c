package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/nvr-ai/go-reps/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the repcount configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	name := configPath
	if name == "" {
		name = "(defaults)"
	}
	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", name)
	_, _ = fmt.Fprintf(out, "   source: %s\n", describeSource(cfg))
	_, _ = fmt.Fprintf(out, "   counter: %s baseline over %d samples every %s, counting on %s\n",
		cfg.Counter.Baseline, cfg.Counter.WindowCapacity, cfg.TickPeriod(), cfg.Counter.Counting)

	if configPath == "" {
		return nil
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
		return nil
	}
	printUnknownKeys(out, unknownKeys)
	return nil
}

func describeSource(cfg *config.Config) string {
	if cfg.Capture.Frames != "" {
		return "frames in " + cfg.Capture.Frames
	}
	return "device " + cfg.Capture.Device
}

// findUnknownKeys returns the keys set in the file that no setting consumes.
func findUnknownKeys(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, key := range config.Keys() {
		known[key] = true
	}

	var unknown []string
	for _, key := range v.AllKeys() {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

func printUnknownKeys(out io.Writer, keys []string) {
	if len(keys) == 0 {
		return
	}

	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintln(out)
	red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(keys))
	for _, key := range keys {
		red.Fprintf(out, "   - %s\n", key)
	}
	fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
}
