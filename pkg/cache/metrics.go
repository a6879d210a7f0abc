// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheEventsDropped counts events not delivered to a slow subscriber
var CacheEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "icbucket",
	Subsystem: "cache",
	Name:      "events_dropped_total",
	Help:      "Total number of asset cache events dropped for slow subscribers",
})

func init() {
	debug.Register(CacheEventsDropped)
}
