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
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookURL = "https://hooks.example.com/paychain"

func mockWebhookConfig(t *testing.T, redisAddr string) *config.Configuration {
	t.Helper()
	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: redisAddr},
		Notification: config.Notification{Webhook: config.WebhookConfig{
			Url:     testWebhookURL,
			Headers: map[string]string{"X-Signature": "secret"},
		}},
	}
	config.MockConfig(cnf)
	return cnf
}

func pendingTasks(t *testing.T, mr *miniredis.Miniredis, queue string) []string {
	t.Helper()
	key := "asynq:{" + queue + "}:pending"
	if !mr.Exists(key) {
		return nil
	}
	ids, err := mr.List(key)
	require.NoError(t, err)
	return ids
}

func TestSendWebhook_EnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)
	cnf := mockWebhookConfig(t, mr.Addr())

	q, err := NewQueue(cnf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	assert.Equal(t, config.DEFAULT_WEBHOOK_QUEUE, q.WebhookQueue())
	assert.Equal(t, config.DEFAULT_RECOVERY_QUEUE, q.RecoveryQueue())

	p := &Paychain{queue: q}
	require.NoError(t, p.SendWebhook(NewWebhook{Event: EventTransferCompleted, Payload: map[string]string{"transaction_id": "txn_1"}}))
	assert.Len(t, pendingTasks(t, mr, q.WebhookQueue()), 1)
}

func TestSendWebhook_NoopWithoutURL(t *testing.T) {
	mr := miniredis.RunT(t)
	cnf := mockWebhookConfig(t, mr.Addr())
	cnf.Notification.Webhook.Url = ""

	q, err := NewQueue(cnf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	p := &Paychain{queue: q}
	require.NoError(t, p.SendWebhook(NewWebhook{Event: EventTransferCompleted}))
	assert.Empty(t, pendingTasks(t, mr, q.WebhookQueue()))

	assert.NoError(t, (&Paychain{}).SendWebhook(NewWebhook{Event: EventTransferCompleted}))
}

func TestEnqueueRecovery(t *testing.T) {
	mr := miniredis.RunT(t)
	cnf := mockWebhookConfig(t, mr.Addr())
	cnf.Queue.RecoveryQueue = "recovery"

	q, err := NewQueue(cnf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	task, err := q.RecoveryTask("cron")
	require.NoError(t, err)
	assert.Equal(t, "recovery", task.Type())
	assert.JSONEq(t, `{"actor":"cron"}`, string(task.Payload()))

	require.NoError(t, q.EnqueueRecovery("ops"))
	assert.Len(t, pendingTasks(t, mr, "recovery"), 1)
}

func TestProcessWebhook(t *testing.T) {
	mockWebhookConfig(t, "localhost:6379")
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var received NewWebhook
	var signature string
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		signature = req.Header.Get("X-Signature")
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"status":"ok"}`), nil
	})

	payload, err := json.Marshal(NewWebhook{Event: EventChainRestored, Payload: map[string]int{"length": 3}})
	require.NoError(t, err)
	require.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask(config.DEFAULT_WEBHOOK_QUEUE, payload)))

	assert.Equal(t, EventChainRestored, received.Event)
	assert.Equal(t, "secret", signature)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_Failures(t *testing.T) {
	mockWebhookConfig(t, "localhost:6379")
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadGateway, ""))

	err := ProcessWebhook(context.Background(), asynq.NewTask(config.DEFAULT_WEBHOOK_QUEUE, []byte(`{not json`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	payload, _ := json.Marshal(NewWebhook{Event: EventTransferCompleted})
	err = ProcessWebhook(context.Background(), asynq.NewTask(config.DEFAULT_WEBHOOK_QUEUE, payload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessChainRecovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.account(t, "A", 100)
	env.account(t, "B", 0)
	receipt, err := env.p.TransferFunds(ctx, "A", "B", 30, "")
	require.NoError(t, err)

	env.tamper(t, func(blocks []chain.Block) {
		blocks[receipt.BlockIndex].Transactions[0].ToAccount = "mallory"
	})

	payload, _ := json.Marshal(RecoveryPayload{Actor: "ops"})
	require.NoError(t, env.p.ProcessChainRecovery(ctx, asynq.NewTask(config.DEFAULT_RECOVERY_QUEUE, payload)))

	report, err := env.p.ValidateChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	// A second, empty-payload run finds nothing to do.
	require.NoError(t, env.p.ProcessChainRecovery(ctx, asynq.NewTask(config.DEFAULT_RECOVERY_QUEUE, nil)))

	logs, err := env.p.GetAuditLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ops", logs[0].Actor)

	err = env.p.ProcessChainRecovery(ctx, asynq.NewTask(config.DEFAULT_RECOVERY_QUEUE, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
