package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/daemon"
	"github.com/w2kr1stn/babel-tower/internal/mcpserver"
	"github.com/w2kr1stn/babel-tower/internal/output"
	"github.com/w2kr1stn/babel-tower/internal/pipeline"
	"github.com/w2kr1stn/babel-tower/internal/processing"
	"github.com/w2kr1stn/babel-tower/internal/tray"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record one utterance and print the processed text",
	Long:  "Waits for speech on the microphone, records until the speaker pauses, then transcribes and processes the recording. The result is copied to the clipboard and printed to stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.newPipeline(true, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		text, err := p.Run(ctx, pipeline.Options{Mode: mode, Clipboard: true})
		if errors.Is(err, audio.ErrNoSpeech) {
			if err := e.notifier.Notify("Keine Sprache erkannt", output.UrgencyLow); err != nil {
				e.log.Debug().Err(err).Msg("Notification failed")
			}
			return nil
		}
		if err != nil {
			return err
		}

		// Output to stdout for piping to other commands.
		fmt.Println(text)
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process <file.wav>",
	Short: "Transcribe and process an existing WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.newPipeline(false, nil)
		if err != nil {
			return err
		}

		text, err := p.ProcessFile(cmd.Context(), args[0], pipeline.Options{Mode: mode, Clipboard: true})
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Listen continuously and deliver every utterance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.newPipeline(true, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d := daemon.New(daemon.Config{
			Pipeline: p,
			Notifier: e.notifier,
			Logger:   e.log,
			Mode:     mode,
		})
		return d.Run(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the converse and set_mode tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.newPipeline(true, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		promptsDir := e.cfg.Processing.PromptsDir
		server := mcpserver.New(mcpserver.Config{
			Pipeline: p,
			Notifier: e.notifier,
			Speaker:  e.speaker(),
			Modes:    func() []string { return processing.AvailableModes(promptsDir) },
			Version:  Version,
			Logger:   e.log,
		})
		return server.Serve(ctx)
	},
}

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Run the listening daemon behind a system tray icon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		// Create tray UI first (we'll pass it to the pipeline)
		ui := tray.New(e.cfg, Version, e.log)

		p, err := e.newPipeline(true, ui)
		if err != nil {
			return err
		}

		d := daemon.New(daemon.Config{
			Pipeline: p,
			Notifier: e.notifier,
			Logger:   e.log,
			Mode:     e.cfg.Processing.DefaultMode,
		})
		ui.SetListener(d)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return d.Run(gctx)
		})

		// Tray UI - MUST run on main thread
		if err := ui.Run(gctx, cancel); err != nil {
			cancel()
			return errors.Join(err, g.Wait())
		}
		cancel()
		return g.Wait()
	},
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the processing modes found in the prompts directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		for _, mode := range processing.AvailableModes(e.cfg.Processing.PromptsDir) {
			marker := " "
			if mode == e.cfg.Processing.DefaultMode {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, mode)
		}
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		device, err := e.openDevice()
		if err != nil {
			return err
		}
		devices, err := device.ListDevices()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, dev := range devices {
			marker := " "
			if dev.Default {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, dev.Name)
		}
		return nil
	},
}

func init() {
	listenCmd.Flags().StringP("mode", "m", "", "Processing mode (default: chosen automatically)")
	processCmd.Flags().StringP("mode", "m", "", "Processing mode (default: chosen automatically)")
	daemonCmd.Flags().StringP("mode", "m", "", "Default processing mode for the session")
}
