package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string

	deviceFlag   string
	framesFlag   string
	logLevelFlag string
	durationFlag time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "repcount",
	Short: "repcount - Count exercise repetitions from a camera feed",
	Long: `repcount samples a camera (or a directory of frames) ten times per second,
measures how much of the scene is moving and counts a repetition every time
the subject returns to its initial position.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCounter,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Capture device index or video path")
	rootCmd.Flags().StringVarP(&framesFlag, "frames", "f", "", "Directory of frames to replay instead of a device")
	rootCmd.Flags().DurationVar(&durationFlag, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
