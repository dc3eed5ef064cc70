/*
Draws the testbed quad with the frame engine until the window is closed,
the process is interrupted or the requested number of frames has been drawn.
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/fromscratch/engine"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/testbed"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	frames     uint64
	validation bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fromscratch",
	Short: "Vulkan frame engine testbed",
	Long: `fromscratch opens a window and draws a rotating quad, keeping up to
max_frames_in_flight frames queued on the GPU.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (defaults are used when empty)")
	rootCmd.Flags().Uint64Var(&frames, "frames", 0, "stop after this many frames (0 runs until the window closes)")
	rootCmd.Flags().BoolVar(&validation, "validation", false, "enable the Vulkan validation layers")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

func loadConfig(cmd *cobra.Command) (*engine.ApplicationConfig, error) {
	config := engine.DefaultConfig()
	if cfgFile != "" {
		c, err := engine.LoadConfig(cfgFile)
		if err != nil {
			return nil, err
		}
		config = c
	}
	// Flags win over the file.
	if cmd.Flags().Changed("validation") {
		config.Renderer.Validation = validation
	}
	if cmd.Flags().Changed("log-level") {
		level, err := core.ParseLogLevel(logLevel)
		if err != nil {
			return nil, err
		}
		config.Log.Level = level
	}
	return config, config.Validate()
}

func run(cmd *cobra.Command, args []string) (err error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tb := testbed.NewTestGame(config)
	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, e.Shutdown())
	}()

	if err := e.Initialize(); err != nil {
		return err
	}
	e.SetFrameLimit(frames)

	// signal context to capture system calls
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	return e.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}
