package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inorbit-ai/edge-sdk-go/config"
	"github.com/inorbit-ai/edge-sdk-go/logging"
	"github.com/inorbit-ai/edge-sdk-go/missions"
	"github.com/inorbit-ai/edge-sdk-go/robot"
)

func main() {
	var robotID string
	var robotName string

	rootCmd := &cobra.Command{
		Use:   "edge-agent",
		Short: "Connects a simulated robot to the InOrbit platform",
		RunE: func(_ *cobra.Command, _ []string) error {
			if robotID == "" {
				return fmt.Errorf("--robot-id is required")
			}
			if robotName == "" {
				robotName = robotID
			}
			return run(robotID, robotName)
		},
	}
	rootCmd.Flags().StringVar(&robotID, "robot-id", "", "Robot identifier on the platform")
	rootCmd.Flags().StringVar(&robotName, "robot-name", "", "Display name (defaults to the robot id)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(robotID, robotName string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	factory := robot.NewRobotSessionFactory(cfg.APIKey, cfg.Endpoint, cfg.UseSSL, logger)
	factory.RegisterCommandCallback(func(commandName string, args []any, options *robot.CommandOptions) {
		logger.Info("command received", "command", commandName, "args", args)
		if commandName == robot.CommandCustomCommand {
			options.Result.Report(0, "", "ok", "")
		}
	})
	pool := robot.NewRobotSessionPool(factory)
	defer pool.TearDown()

	session, err := pool.GetSession(robotID, robotName)
	if err != nil {
		return fmt.Errorf("connect robot %q: %w", robotID, err)
	}
	missions.NewModule(session, logger)

	stop := make(chan struct{})
	go simulate(session, logger, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(stop)
	return nil
}

// simulate drives the robot in a slow circle and reports telemetry
// until stopped.
func simulate(session *robot.RobotSession, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var angle float64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		angle += 0.02
		x := 5 * math.Cos(angle)
		y := 5 * math.Sin(angle)
		yaw := math.Mod(angle+math.Pi/2, 2*math.Pi)
		if err := session.PublishPose(x, y, yaw, "map", 0); err != nil {
			logger.Warn("pose publish failed", slog.Any("error", err))
		}
		if err := session.PublishOdometry(0, nil); err != nil {
			logger.Warn("odometry publish failed", slog.Any("error", err))
		}
		err := session.PublishKeyValues(map[string]any{
			"battery_percent": 87,
			"mode":            "simulated",
		}, false)
		if err != nil {
			logger.Warn("key values publish failed", slog.Any("error", err))
		}
	}
}
