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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	transfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "transfers_total",
		Help:      "Transfers by outcome.",
	}, []string{"outcome"})

	transferDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paychain",
		Name:      "transfer_duration_seconds",
		Help:      "Time spent in TransferFunds, including lock waits and mining.",
		Buckets:   prometheus.DefBuckets,
	})

	miningDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paychain",
		Name:      "mining_duration_seconds",
		Help:      "Time to mine one block.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	suspiciousTransfers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "suspicious_transfers_total",
		Help:      "Committed transfers flagged by the fraud policy.",
	})

	chainLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paychain",
		Name:      "chain_length",
		Help:      "Number of blocks in the in-memory chain, genesis included.",
	})

	tamperDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "chain_tamper_detections_total",
		Help:      "Validations that found a tampered chain.",
	})

	chainRestores = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "chain_restores_total",
		Help:      "Chain restores from the backup snapshot.",
	})

	registerOnce sync.Once
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transfersTotal, transferDuration, miningDuration,
			suspiciousTransfers, chainLength, tamperDetections, chainRestores)
	})
}

func observeTransfer(outcome string, start time.Time) {
	transfersTotal.WithLabelValues(outcome).Inc()
	transferDuration.Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	if err == nil {
		return "completed"
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(string(apiErr.Code))
	}
	return "error"
}
