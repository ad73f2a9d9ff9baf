/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/paychain-labs/paychain"
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/internal/notification"
	storagemonitor "github.com/paychain-labs/paychain/internal/storage-monitor"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		queueOrDefault(conf.Queue.WebhookQueue, config.DEFAULT_WEBHOOK_QUEUE):   3,
		queueOrDefault(conf.Queue.RecoveryQueue, config.DEFAULT_RECOVERY_QUEUE): 1,
	}
}

func queueOrDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := paychain.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
	}), nil
}

func initializeTaskHandlers(p *paychain.Paychain, conf *config.Configuration, mux *asynq.ServeMux) {
	mux.HandleFunc(queueOrDefault(conf.Queue.WebhookQueue, config.DEFAULT_WEBHOOK_QUEUE), paychain.ProcessWebhook)
	mux.HandleFunc(queueOrDefault(conf.Queue.RecoveryQueue, config.DEFAULT_RECOVERY_QUEUE), p.ProcessChainRecovery)
}

// recoverySchedule turns the configured interval into an asynq cron spec. An empty
// or unparsable interval disables the schedule.
func recoverySchedule(conf *config.Configuration) (string, bool) {
	interval := conf.Recovery.IntervalDuration()
	if interval <= 0 {
		return "", false
	}
	return "@every " + interval.String(), true
}

// initializeScheduler registers the periodic chain check. It returns nil when
// scheduled recovery is disabled.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	spec, ok := recoverySchedule(conf)
	if !ok {
		return nil, nil
	}
	opt, err := paychain.RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	queue, err := paychain.NewQueue(conf)
	if err != nil {
		return nil, err
	}
	defer queue.Close()

	actor := conf.Recovery.Actor
	if actor == "" {
		actor = "scheduler"
	}
	task, err := queue.RecoveryTask(actor)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC, Logger: logrus.StandardLogger()})
	if _, err := scheduler.Register(spec, task, asynq.Queue(queue.RecoveryQueue()), asynq.Unique(time.Minute)); err != nil {
		return nil, err
	}
	logrus.Infof("chain recovery scheduled %s", spec)
	return scheduler, nil
}

const storageCheckInterval = 5 * time.Minute

func newStorageMonitor(conf *config.Configuration) *storagemonitor.Monitor {
	file := conf.Chain.File
	if conf.Chain.Store == config.ChainStoreBolt {
		file = conf.Chain.BoltPath
	}
	return storagemonitor.NewMonitor(file, conf.Chain.DiskAlertPercent, nil, notification.NotifyError)
}

func startMonitoring(conf *config.Configuration) error {
	opt, err := paychain.RedisClientOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		logrus.Infof("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("could not start asynqmon server")
		}
	}()
	return nil
}

// workerCommands starts the webhook and chain recovery workers, the recovery
// scheduler, the chain volume monitor and the asynqmon UI.
func workerCommands(app *paychainInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start paychain workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := app.cnf
			if conf.Redis.Dns == "" {
				return errors.New("workers require redis.dns to be configured")
			}

			shutdown, err := initializeTracing(cmd.Context(), conf, "workers")
			if err != nil {
				return err
			}
			defer flushTraces(shutdown)

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				return err
			}
			mux := asynq.NewServeMux()
			initializeTaskHandlers(app.paychain, conf, mux)

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				return err
			}
			if scheduler != nil {
				if err := scheduler.Start(); err != nil {
					return err
				}
				defer scheduler.Shutdown()
			}

			if err := startMonitoring(conf); err != nil {
				return err
			}

			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("could not run server: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go newStorageMonitor(conf).Run(ctx, storageCheckInterval)
			<-ctx.Done()
			srv.Shutdown()
			return nil
		},
	}

	return cmd
}
