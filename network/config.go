package network

import (
	"time"

	"github.com/hakeris1010/ODMRP-Sim/odmrp"
)

// Config bundles every tunable the Scheduler and the Nodes it owns are
// built with. Passing it in, rather than hardcoding the specification's
// defaults as package constants, mirrors the teacher's Config/
// InterfaceConfig split and lets tests shrink the intervals involved.
type Config struct {
	Protocol odmrp.Config
	// QueueCapacity bounds pendingSend and pendingReceive. Overflow
	// drops the oldest queued entry.
	QueueCapacity int
	// ScanInterval is how often the Scheduler's worker loop wakes on
	// its own to re-scan every node for an elapsed route-refresh timer,
	// absent any other activity.
	ScanInterval time.Duration
}

// DefaultConfig returns the specification's defaults: 500ms route
// refresh, 1500ms forwarding timeout, a 2048-entry message cache, and
// 256-deep packet queues.
func DefaultConfig() Config {
	return Config{
		Protocol:      odmrp.DefaultConfig(),
		QueueCapacity: 256,
		ScanInterval:  time.Millisecond,
	}
}
