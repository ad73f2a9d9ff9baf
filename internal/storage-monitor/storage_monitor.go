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

// Package storagemonitor watches the volume holding the chain files and raises an
// alert when its used space crosses a threshold.
package storagemonitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// UsageFunc reports the used percentage of the filesystem containing path.
type UsageFunc func(path string) (float64, error)

// AlertFunc receives threshold breaches.
type AlertFunc func(err error)

// StorageLimitEvent describes a single threshold breach.
type StorageLimitEvent struct {
	Path        string
	UsedPercent float64
	Threshold   float64
}

func (e StorageLimitEvent) Error() string {
	return fmt.Sprintf("disk usage for %s is %.2f%%, above the %.2f%% threshold", e.Path, e.UsedPercent, e.Threshold)
}

type Monitor struct {
	path      string
	threshold float64
	usage     UsageFunc
	alert     AlertFunc

	mu       sync.Mutex
	breached bool
}

func diskUsage(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// NewMonitor watches the directory holding file. A nil usage falls back to gopsutil.
func NewMonitor(file string, threshold float64, usage UsageFunc, alert AlertFunc) *Monitor {
	if usage == nil {
		usage = diskUsage
	}
	if alert == nil {
		alert = func(err error) { logrus.Warn(err) }
	}
	return &Monitor{path: filepath.Dir(file), threshold: threshold, usage: usage, alert: alert}
}

// Check samples usage once. An alert is raised when usage first crosses the
// threshold and again only after it has dropped back below it.
func (m *Monitor) Check() (float64, error) {
	path := m.path
	if _, err := os.Stat(path); err != nil {
		path = "."
	}
	used, err := m.usage(path)
	if err != nil {
		return 0, err
	}
	logrus.Debugf("disk usage for %s: %.2f%%", path, used)

	m.mu.Lock()
	fire := used > m.threshold && !m.breached
	m.breached = used > m.threshold
	m.mu.Unlock()

	if fire {
		m.alert(StorageLimitEvent{Path: path, UsedPercent: used, Threshold: m.threshold})
	}
	return used, nil
}

// Run checks usage every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Check(); err != nil {
			logrus.Errorf("error getting disk usage: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
