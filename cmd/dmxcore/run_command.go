package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dmxcore/internal/clientmqtt"
	"dmxcore/internal/control"
	"dmxcore/internal/logger"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive the DMX output until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("configuration file read error: %w", err)
			}

			log, err := logger.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to create a logger: %w", err)
			}
			log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

			s := control.New(cfg, control.NewOpener(cfg.DMX), log)
			if err := s.Load(); err != nil {
				return fmt.Errorf("load: %w", err)
			}

			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer cancel()

			if err := s.Start(sigCtx); err != nil {
				return fmt.Errorf("failed to start output: %w", err)
			}

			cmds := make(chan clientmqtt.Command, 10)
			var client clientmqtt.MQTTClient
			interval := cfg.MQTT.StatusInterval.Duration
			if cfg.MQTT.Enabled {
				c := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
				log.With(logger.Fields{"module": "mqtt"}).Debug("NewClient created ok")
				if err := c.Start(sigCtx, cmds); err != nil {
					log.Error("failed to start MQTT service: ", err.Error())
				} else {
					client = c
				}
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				var pub control.StatusPublisher
				if client != nil {
					pub = client
				}
				s.Run(sigCtx, cmds, pub, interval)
			}()

			<-sigCtx.Done()
			<-done

			if client != nil {
				if err := client.Stop(); err != nil {
					log.Error("failed to stop MQTT service: ", err.Error())
				}
			}
			err = s.Stop()
			log.Info("shutdown complete")
			return err
		},
	}
}
