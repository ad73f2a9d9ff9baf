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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/internal/request"
	"github.com/sirupsen/logrus"
)

const EventChainTampered = "chain.tampered"

// WebhookSender delivers an event to the configured webhook endpoint.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender installs the function used to forward alerts as webhooks.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

// TamperAlert describes a failed chain validation.
type TamperAlert struct {
	InvalidIndices []int     `json:"invalid_indices"`
	Restored       bool      `json:"restored"`
	RestoredLength int       `json:"restored_length,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func newSlackMessage(title string, fields map[string]string, order []string) slackMessage {
	msg := slackMessage{Blocks: []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
	}}}
	for _, k := range order {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type:   "section",
			Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, fields[k])}},
		})
	}
	return msg
}

func postSlack(ctx context.Context, url string, msg slackMessage) error {
	payload, err := request.ToJsonReq(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	_, err = request.Call(req, nil)
	return err
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(err error) {
	conf, cerr := config.Fetch()
	if cerr != nil {
		logrus.Error(cerr)
		return
	}

	msg := newSlackMessage(fmt.Sprintf("Error From %s 🐞", conf.ProjectName),
		map[string]string{"Error": err.Error(), "Time": time.Now().Format(time.RFC822)},
		[]string{"Error", "Time"})
	if perr := postSlack(context.Background(), conf.Notification.Slack.WebhookUrl, msg); perr != nil {
		logrus.WithError(perr).Error("failed to send slack notification")
	}
}

// NotifyError logs systemError and forwards it to Slack when configured.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			return
		}
		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}

// NotifyTamper raises a tamper alert on Slack and through the registered webhook
// sender. It blocks until both have been attempted.
func NotifyTamper(ctx context.Context, alert TamperAlert) {
	logrus.WithFields(logrus.Fields{
		"invalid_indices": alert.InvalidIndices,
		"restored":        alert.Restored,
	}).Warn("chain tampering detected")

	if conf, err := config.Fetch(); err == nil && conf.Notification.Slack.WebhookUrl != "" {
		indices := make([]string, len(alert.InvalidIndices))
		for i, idx := range alert.InvalidIndices {
			indices[i] = fmt.Sprint(idx)
		}
		msg := newSlackMessage(fmt.Sprintf("Chain tampering on %s ⚠️", conf.ProjectName),
			map[string]string{
				"Invalid blocks": strings.Join(indices, ", "),
				"Restored":       fmt.Sprint(alert.Restored),
				"Time":           alert.DetectedAt.Format(time.RFC822),
			},
			[]string{"Invalid blocks", "Restored", "Time"})
		if err := postSlack(ctx, conf.Notification.Slack.WebhookUrl, msg); err != nil {
			logrus.WithError(err).Error("failed to send tamper alert to slack")
		}
	}

	if sender := currentSender(); sender != nil {
		if err := sender(EventChainTampered, alert); err != nil {
			logrus.WithError(err).Error("failed to queue tamper webhook")
		}
	}
}
