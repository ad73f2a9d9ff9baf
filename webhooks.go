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
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/internal/request"
	"github.com/sirupsen/logrus"
)

// NewWebhook is the envelope posted to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// SendWebhook enqueues hook for delivery. It is a no-op when no queue or webhook URL
// is configured.
func (p *Paychain) SendWebhook(hook NewWebhook) error {
	if p.queue == nil {
		return nil
	}
	conf, err := config.Fetch()
	if err != nil || conf.Notification.Webhook.Url == "" {
		return nil
	}
	return p.queue.enqueueWebhook(hook)
}

func (p *Paychain) sendWebhookAsync(hook NewWebhook) {
	if p.queue == nil {
		return
	}
	go func() {
		if err := p.SendWebhook(hook); err != nil {
			logrus.WithError(err).WithField("event", hook.Event).Error("failed to enqueue webhook")
		}
	}()
}

func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, payload)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(req, nil); err != nil {
		return fmt.Errorf("webhook %s delivery failed: %w", data.Event, err)
	}
	logrus.WithField("event", data.Event).Info("webhook notification sent")
	return nil
}

// ProcessWebhook is the asynq handler for the webhook queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid webhook payload: %v: %w", err, asynq.SkipRetry)
	}
	return processHTTP(ctx, payload)
}

// ProcessChainRecovery is the asynq handler for the chain recovery queue.
func (p *Paychain) ProcessChainRecovery(ctx context.Context, task *asynq.Task) error {
	var payload RecoveryPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid recovery payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Actor == "" {
		payload.Actor = "scheduler"
	}
	_, err := p.CheckAndRecover(ctx, payload.Actor)
	return err
}
