package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keepmind9/wirebot/internal/bot"
	"github.com/keepmind9/wirebot/internal/config"
	"github.com/keepmind9/wirebot/internal/logger"
	"github.com/keepmind9/wirebot/internal/robot"
	"github.com/keepmind9/wirebot/internal/scripts"
	"github.com/keepmind9/wirebot/internal/store"
	"github.com/keepmind9/wirebot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start wirebot",
		Long:  "Log in to Wire, follow the notification stream and answer messages until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			if err := logger.InitLogger(loggerConfig(cfg)); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   cfg.Logging.Level,
				"log_file":    cfg.Logging.File,
				"backend":     cfg.Wire.Backend,
			}).Info("logger-initialized")

			storePath, err := cfg.StorePath()
			if err != nil {
				log.Fatalf("Failed to resolve store path: %v", err)
			}
			st, err := store.Open(storePath)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer st.Close()

			r, err := newRobot(cfg, st)
			if err != nil {
				log.Fatalf("Failed to create robot: %v", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				fmt.Printf("%s starting...\n", r.Name())
				fmt.Println("Press Ctrl+C to stop")
				if err := r.Run(ctx); err != nil {
					logger.WithField("error", err).Error("robot-run-failed")
					r.Shutdown()
				}
			}()

			select {
			case sig := <-sigChan:
				logger.WithField("signal", sig.String()).Info("received-signal-shutting-down")
				stopCtx, stopCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				if err := r.Stop(stopCtx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
				stopCancel()
			case <-r.Done():
			}

			log.Println("wirebot stopped")
		},
	}
)

// newRobot assembles a robot with the Wire adapter and the built-in scripts
func newRobot(cfg *config.Config, st *store.Store) (*robot.Robot, error) {
	httpAddr := ""
	if cfg.HTTP.Enabled {
		httpAddr = cfg.HTTP.Address()
	}

	r := robot.New(robot.Options{
		Name:      cfg.Robot.Name,
		Alias:     cfg.Robot.Alias,
		Brain:     robot.NewBrain(st),
		HTTPAddr:  httpAddr,
		HTTPToken: cfg.HTTP.Token,
	})
	scripts.Register(r)

	if err := r.LoadAdapter(bot.AdapterName, bot.Use(cfg.Wire, st)); err != nil {
		return nil, err
	}
	return r, nil
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:        cfg.Logging.Level,
		File:         cfg.Logging.File,
		MaxSize:      cfg.Logging.MaxSize,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAge,
		Compress:     cfg.Logging.Compress,
		EnableStdout: cfg.Logging.EnableStdout,
	}
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default: environment only)")
}
