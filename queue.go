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

package paychain

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/paychain-labs/paychain/config"
	redis_db "github.com/paychain-labs/paychain/internal/redis-db"
	"github.com/sirupsen/logrus"
)

// Queue delivers background work through asynq.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector

	webhookQueue  string
	recoveryQueue string
}

// RecoveryPayload is the body of a scheduled chain recovery task.
type RecoveryPayload struct {
	Actor string `json:"actor"`
}

// RedisClientOpt converts the configured Redis address into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	opt, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: opt.Addr, Password: opt.Password, DB: opt.DB, TLSConfig: opt.TLSConfig}, nil
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:        asynq.NewClient(opt),
		Inspector:     asynq.NewInspector(opt),
		webhookQueue:  queueName(conf.Queue.WebhookQueue, config.DEFAULT_WEBHOOK_QUEUE),
		recoveryQueue: queueName(conf.Queue.RecoveryQueue, config.DEFAULT_RECOVERY_QUEUE),
	}, nil
}

func queueName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func (q *Queue) WebhookQueue() string  { return q.webhookQueue }
func (q *Queue) RecoveryQueue() string { return q.recoveryQueue }

func (q *Queue) enqueueWebhook(hook NewWebhook) error {
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.webhookQueue, payload, asynq.Queue(q.webhookQueue), asynq.MaxRetry(5))
	info, err := q.Client.Enqueue(task)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"event": hook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

// RecoveryTask builds the task the scheduler registers for periodic chain checks.
func (q *Queue) RecoveryTask(actor string) (*asynq.Task, error) {
	payload, err := json.Marshal(RecoveryPayload{Actor: actor})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(q.recoveryQueue, payload, asynq.Queue(q.recoveryQueue), asynq.MaxRetry(0)), nil
}

// EnqueueRecovery asks a worker to run CheckAndRecover as soon as possible.
func (q *Queue) EnqueueRecovery(actor string) error {
	task, err := q.RecoveryTask(actor)
	if err != nil {
		return err
	}
	_, err = q.Client.Enqueue(task)
	return err
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close queue inspector")
	}
	return q.Client.Close()
}
