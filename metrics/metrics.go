// Package metrics wires the backpressure and occupancy counters called for
// by §5 ("Implementations must expose a high-water mark or a sent-batch
// counter for monitoring") onto prometheus/client_golang, the same library
// the teacher exposes its own stats through.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package metrics

import "github.com/prometheus/client_golang/prometheus"

// socketManager is the subset of *transport.Manager metrics needs; kept as
// an interface so this package never imports transport.
type socketManager interface {
	MailboxHighWaterMark() int64
	SentBatches() int64
}

// replyPool is the subset of *reply.Pool metrics needs.
type replyPool interface {
	LiveCount() int
	IdleCount() int
}

// replyRouter is the subset of *reply.Router metrics needs.
type replyRouter interface {
	Count() int
}

// RegisterManager exposes one socket manager's mailbox high-water mark and
// sent-batch counter, labeled by scope name.
func RegisterManager(reg prometheus.Registerer, scopeName string, m socketManager) error {
	hwm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "fastbus",
		Subsystem:   "socket_manager",
		Name:        "mailbox_high_water_mark",
		Help:        "Highest observed occupancy of the schedule mailbox.",
		ConstLabels: prometheus.Labels{"scope": scopeName},
	}, func() float64 { return float64(m.MailboxHighWaterMark()) })

	sent := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   "fastbus",
		Subsystem:   "socket_manager",
		Name:        "sent_batches_total",
		Help:        "Total frames sent by this socket manager.",
		ConstLabels: prometheus.Labels{"scope": scopeName},
	}, func() float64 { return float64(m.SentBatches()) })

	if err := reg.Register(hwm); err != nil {
		return err
	}
	return reg.Register(sent)
}

// RegisterPool exposes a pending-reply pool's live/idle occupancy.
func RegisterPool(reg prometheus.Registerer, name string, p replyPool) error {
	live := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "fastbus",
		Subsystem:   "reply_pool",
		Name:        "live",
		Help:        "Live pending-reply instances (idle + rented).",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(p.LiveCount()) })

	idle := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "fastbus",
		Subsystem:   "reply_pool",
		Name:        "idle",
		Help:        "Idle pending-reply instances available for rent.",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(p.IdleCount()) })

	if err := reg.Register(live); err != nil {
		return err
	}
	return reg.Register(idle)
}

// RegisterRouter exposes the reply router's in-flight correlation-id count.
func RegisterRouter(reg prometheus.Registerer, r replyRouter) error {
	inflight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fastbus",
		Subsystem: "reply_router",
		Name:      "inflight",
		Help:      "Correlation ids currently awaiting a reply.",
	}, func() float64 { return float64(r.Count()) })
	return reg.Register(inflight)
}
