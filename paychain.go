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

// Package paychain coordinates balance transfers with a tamper-evident, hash-chained
// record of every committed money movement.
package paychain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/database"
	"github.com/paychain-labs/paychain/internal/cache"
	"github.com/paychain-labs/paychain/internal/notification"
	redis_db "github.com/paychain-labs/paychain/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("paychain")

const (
	DefaultDailyLimit    int64 = 500000
	DefaultDifficulty    uint  = 2
	DefaultMinDifficulty uint  = 1
)

// Paychain is the transfer coordinator and tamper recovery workflow.
type Paychain struct {
	// mu orders every transfer and recovery run in one sequence shared by the
	// ledger history and the chain.
	mu sync.Mutex

	datasource database.IDataSource
	chain      *chain.Manager
	queue      *Queue
	redis      redis.UniversalClient

	fraud            FraudPolicy
	dailyLimit       int64
	difficulty       uint
	minDifficulty    uint
	location         *time.Location
	recordRejections bool
	lockTimeout      time.Duration
	lockWait         time.Duration
	now              func() time.Time
	closers          []func() error
}

type Option func(*Paychain)

// WithFraudPolicy replaces DefaultFraudPolicy.
func WithFraudPolicy(policy FraudPolicy) Option {
	return func(p *Paychain) {
		if policy != nil {
			p.fraud = policy
		}
	}
}

// WithDailyLimit sets the per-account daily debit limit in minor units.
func WithDailyLimit(limit int64) Option {
	return func(p *Paychain) {
		if limit > 0 {
			p.dailyLimit = limit
		}
	}
}

// WithDifficulty sets the mining difficulty and the floor it may be lowered to when
// mining times out.
func WithDifficulty(difficulty, minDifficulty uint) Option {
	return func(p *Paychain) {
		p.difficulty = difficulty
		if minDifficulty > difficulty {
			minDifficulty = difficulty
		}
		p.minDifficulty = minDifficulty
	}
}

// WithLocation sets the timezone in which daily limits reset.
func WithLocation(loc *time.Location) Option {
	return func(p *Paychain) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithRecordRejections stores rejected transfers as failed ledger rows.
func WithRecordRejections(on bool) Option {
	return func(p *Paychain) {
		p.recordRejections = on
	}
}

// WithRedis enables per-account distributed locks.
func WithRedis(client redis.UniversalClient) Option {
	return func(p *Paychain) {
		p.redis = client
	}
}

// WithQueue enables asynchronous webhook delivery.
func WithQueue(q *Queue) Option {
	return func(p *Paychain) {
		p.queue = q
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Paychain) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPaychain wires a coordinator around an initialised chain manager.
func NewPaychain(db database.IDataSource, cm *chain.Manager, opts ...Option) (*Paychain, error) {
	if db == nil || cm == nil {
		return nil, errors.New("paychain requires a datasource and a chain manager")
	}
	p := &Paychain{
		datasource:    db,
		chain:         cm,
		fraud:         DefaultFraudPolicy,
		dailyLimit:    DefaultDailyLimit,
		difficulty:    DefaultDifficulty,
		minDifficulty: DefaultMinDifficulty,
		location:      time.UTC,
		lockTimeout:   30 * time.Second,
		lockWait:      10 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.difficulty > chain.MaxDifficulty {
		return nil, errors.New("mining difficulty must be at most 64")
	}

	if p.queue != nil {
		notification.RegisterWebhookSender(func(event string, payload interface{}) error {
			return p.SendWebhook(NewWebhook{Event: event, Payload: payload})
		})
	}
	registerMetrics()
	chainLength.Set(float64(cm.Len()))
	return p, nil
}

// NewFromConfig builds the datasource, chain stores, Redis client and queue described
// by cfg and initialises the chain.
func NewFromConfig(ctx context.Context, cfg *config.Configuration) (*Paychain, error) {
	ds, err := database.GetDBConnection(cfg)
	if err != nil {
		return nil, err
	}

	store, backup, err := openChainStores(cfg.Chain)
	if err != nil {
		return nil, err
	}
	cm := chain.NewManager(store,
		chain.WithBackupStore(backup),
		chain.WithMaxIterations(cfg.Chain.MaxIterations),
	)
	if err := cm.Init(ctx); err != nil {
		_ = cm.Close()
		return nil, err
	}

	opts := []Option{
		WithDailyLimit(cfg.Transfer.DailyLimit),
		WithDifficulty(cfg.Chain.Difficulty, cfg.Chain.MinDifficulty),
		WithLocation(cfg.Transfer.Location()),
		WithRecordRejections(cfg.Transfer.RecordRejections),
	}

	var closers []func() error
	if cfg.Redis.Dns != "" {
		client, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
		if err != nil {
			_ = cm.Close()
			return nil, err
		}
		ds.WithCache(cache.NewRedisCache(client.Client()))
		queue, err := NewQueue(cfg)
		if err != nil {
			_ = cm.Close()
			_ = client.Close()
			return nil, err
		}
		opts = append(opts, WithRedis(client.Client()), WithQueue(queue))
		closers = append(closers, queue.Close, client.Close)
	} else {
		logrus.Info("redis not configured: distributed locks, account cache and webhooks are disabled")
	}

	p, err := NewPaychain(ds, cm, opts...)
	if err != nil {
		_ = cm.Close()
		return nil, err
	}
	p.closers = append(closers, cm.Close)

	if _, err := p.ReconcileChain(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func openChainStores(cfg config.ChainConfig) (chain.Store, chain.Store, error) {
	if cfg.Store == config.ChainStoreBolt {
		return chain.OpenBoltStores(cfg.BoltPath)
	}

	store, err := chain.NewFileStore(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	backup, err := chain.NewFileStore(cfg.BackupFile)
	if err != nil {
		return nil, nil, err
	}
	return store, backup, nil
}

// Chain exposes the chain manager to the HTTP and CLI layers.
func (p *Paychain) Chain() *chain.Manager {
	return p.chain
}

func (p *Paychain) DailyLimit() int64 {
	return p.dailyLimit
}

func (p *Paychain) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
