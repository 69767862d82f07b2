package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/server"
	"github.com/audiolibrelab/pcmrecorder/internal/service"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for remote control",
	Long: `Start the pcmrecorder HTTP API to control capture and playback remotely.
This allows you to record from your smartphone or any device on the same network.

With --watch the configuration file is reloaded when it changes, as long as
no capture or playback is running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		watch, _ := cmd.Flags().GetBool("watch")
		if port == "" {
			port = cfg.Server.Port
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		srv := server.New(svc, port)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx)
		})
		if watch {
			g.Go(func() error {
				return watchConfig(gctx, svc)
			})
		}

		slog.Info("pcmrecorder API starting", "port", port, "config", cfgFile, "watch", watch)

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// watchConfig reloads the service whenever the config file is written.
// The directory is watched because editors usually replace the file.
func watchConfig(ctx context.Context, svc service.Service) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(cfgFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			reloadConfig(svc)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}

func reloadConfig(svc service.Service) {
	newCfg, err := config.LoadWithProfile(cfgFile, profile)
	if err != nil {
		slog.Error("Ignoring invalid configuration change", "config", cfgFile, "error", err)
		return
	}
	if err := svc.Reload(newCfg); err != nil {
		slog.Warn("Configuration change not applied", "error", err)
		return
	}
	slog.Info("Configuration file reloaded", "config", cfgFile)
}

func init() {
	serveCmd.Flags().String("port", "", "port for the API server (default from config, 8080)")
	serveCmd.Flags().Bool("watch", false, "reload the config file when it changes")
}
