package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/spawner-dev/spawner/internal/config"
	"github.com/spawner-dev/spawner/internal/docker"
	"github.com/spawner-dev/spawner/internal/logger"
	"github.com/spawner-dev/spawner/internal/types"
)

// Node-side commands for poking at the container runtime the way the
// drone agent does: run/stop a workload container and tail its events
// or logs.

func droneSetup(cmd *cobra.Command) (context.Context, context.CancelFunc, *docker.Interface, zerolog.Logger, error) {
	cfg := cmd.Context().Value(configKey).(*config.Config)
	logInstance := logger.SetupLogger(&cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	iface, err := docker.Connect(ctx, &cfg.Docker, logInstance)
	if err != nil {
		cancel()
		return nil, nil, nil, logInstance, fmt.Errorf("connecting to container runtime: %w", err)
	}
	return ctx, cancel, iface, logInstance, nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream classified container lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, iface, logInstance, err := droneSetup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer iface.Close()

		for event := range iface.ContainerEvents(ctx) {
			logInstance.Info().
				Str("kind", string(event.Kind)).
				Str("name", event.Name).
				Msg("Container event")
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <image> [KEY=VALUE ...]",
	Short: "Run a workload container from an image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, iface, logInstance, err := droneSetup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer iface.Close()

		image := args[0]
		env := make(map[string]string)
		for _, kv := range args[1:] {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("environment entry %q is not KEY=VALUE", kv)
			}
			env[k] = v
		}

		if err := iface.PullImage(ctx, image, nil); err != nil {
			return err
		}

		name := types.NewRandomWorkloadId().ToResourceName()
		if err := iface.RunContainer(ctx, name, image, env); err != nil {
			return err
		}
		logInstance.Info().Str("name", name).Msg("Workload container started")

		if port, ok := iface.GetPort(ctx, name); ok {
			fmt.Printf("%s 127.0.0.1:%d\n", name, port)
		} else {
			fmt.Println(name)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Gracefully stop a workload container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, iface, _, err := droneSetup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer iface.Close()

		return iface.StopContainer(ctx, args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Report whether a workload container is running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, iface, _, err := droneSetup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer iface.Close()

		running, exitCode, err := iface.IsRunning(ctx, args[0])
		if err != nil {
			return err
		}
		switch {
		case running:
			fmt.Println("running")
		case exitCode != nil:
			fmt.Printf("stopped (exit code %d)\n", *exitCode)
		default:
			fmt.Println("not found")
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Follow a workload container's combined output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, iface, logInstance, err := droneSetup(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer iface.Close()

		stream, err := iface.GetLogs(ctx, args[0])
		if err != nil {
			return err
		}
		for event := range stream {
			if event.Err != nil {
				logInstance.Warn().Err(event.Err).Msg("Log stream error")
				continue
			}
			fmt.Printf("%s %s\n", event.Entry.Timestamp.Format("2006-01-02 15:04:05"), event.Entry.Line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd, runCmd, stopCmd, statusCmd, logsCmd)
}
