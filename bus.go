// Package fastbus assembles the command-plane scatter-gather mesh: the
// dispatcher façade (C11), its four scopes, the peer registry, and the
// command servers that answer them. An application builds a Bus, registers
// its handlers against Bus.Registry, calls Start, and then uses
// Bus.Dispatcher.{Local,Machine,Cluster,Network} to scatter commands.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fastbus

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/fastbus/fastbus/cmn"
	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
	"github.com/fastbus/fastbus/cmn/prob"
	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/handler"
	"github.com/fastbus/fastbus/hk"
	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/metrics"
	"github.com/fastbus/fastbus/reply"
	"github.com/fastbus/fastbus/scope"
	"github.com/fastbus/fastbus/server"
)

const (
	defaultPoolCoreSize = 16
	defaultPoolMaxSize  = 256
	defaultPoolBurstMax = 1024
	defaultFilterFPRate = 0.01
)

// Bus is the assembled library instance.
type Bus struct {
	Config     *cmn.Config
	Dispatcher *scope.Dispatcher
	Registry   *handler.Registry
	Peers      *mesh.Registry
	Events     *mesh.EventBus
	Router     *reply.Router
	Pool       *reply.Pool
	Self       *mesh.PeerContext
	Metrics    *prometheus.Registry

	servers []*server.Server
}

// New assembles every component but registers no handlers and starts
// nothing yet - an application fills in Registry, then calls Start.
func New(cfg *cmn.Config, c codec.Codec) *Bus {
	events := mesh.NewEventBus()
	router := reply.NewRouter()
	pool := reply.NewPool("default", reply.PoolConfig{
		CoreSize: defaultPoolCoreSize,
		MaxSize:  defaultPoolMaxSize,
		BurstMax: defaultPoolBurstMax,
		BurstTTL: cfg.CleanupInterval.D(),
	})
	peers := mesh.NewRegistry(events, cfg.InactiveThreshold.D())
	registry := handler.NewRegistry()

	hostname, _ := os.Hostname()
	self := &mesh.PeerContext{
		MeshID:          cos.CryptoRandU64(),
		ApplicationName: cfg.ApplicationName,
		WorkstationName: hostname,
		ClusterName:     cfg.Cluster.ClusterName,
		IsSelf:          true,
	}

	dispatcher := scope.NewDispatcher(cfg, hostname, router, pool, c, events)
	cmn.Rom.Set(cfg)

	return &Bus{
		Config:     cfg,
		Dispatcher: dispatcher,
		Registry:   registry,
		Peers:      peers,
		Events:     events,
		Router:     router,
		Pool:       pool,
		Self:       self,
		Metrics:    prometheus.NewRegistry(),
	}
}

// Start runs the housekeeper, every scope's socket-manager worker, and
// `server_instances` command servers (§6), then publishes the local
// PeerContext - with its now-bound RPC port and routing filter - as a
// PeerJoined event so every subscriber (including this process's own
// Local-scope socket manager) picks it up.
func (b *Bus) Start() error {
	go hk.DefaultHK.Run()
	b.Dispatcher.Run()

	instances := cmn.Rom.ServerInstances()
	servers := make([]*server.Server, instances)
	var eg errgroup.Group
	for i := 0; i < instances; i++ {
		i := i
		eg.Go(func() error {
			name := b.Config.ApplicationName
			if i > 0 {
				name = fmt.Sprintf("%s-%d", name, i)
			}
			srv := server.New(name, b.Registry, b.Config.RPCPortBase)
			if err := srv.Start(); err != nil {
				return err
			}
			servers[i] = srv
			return nil
		})
	}
	waitErr := eg.Wait()
	b.servers = servers
	if waitErr != nil {
		return waitErr
	}
	if len(b.servers) > 0 {
		b.Self.RPCPort = b.servers[0].BoundPort()
	}

	b.publishRoutingTable()
	b.Self.LastSeen = time.Now()
	b.Peers.Upsert(b.Self)
	b.Events.FireJoined(b.Self)

	b.registerMetrics()
	return nil
}

// registerMetrics exposes every socket manager's backpressure counters
// (§5) plus the shared pool/router occupancy onto b.Metrics. A
// registration failure (e.g. a duplicate collector on a reused registry)
// is logged and otherwise ignored - metrics are monitoring, not a startup
// precondition.
func (b *Bus) registerMetrics() {
	for name, m := range b.Dispatcher.NamedManagers() {
		if err := metrics.RegisterManager(b.Metrics, name, m); err != nil {
			nlog.Warningf("bus: register %s socket-manager metrics: %v", name, err)
		}
	}
	if err := metrics.RegisterPool(b.Metrics, "default", b.Pool); err != nil {
		nlog.Warningf("bus: register reply-pool metrics: %v", err)
	}
	if err := metrics.RegisterRouter(b.Metrics, b.Router); err != nil {
		nlog.Warningf("bus: register reply-router metrics: %v", err)
	}
}

// DefaultTimeout is the configured message_timeout (§6), for callers that
// scatter without computing their own per-call deadline.
func (b *Bus) DefaultTimeout() time.Duration { return cmn.Rom.MessageTimeout() }

// publishRoutingTable builds the self peer's routing-filter bytes from
// every topic currently registered (§4.1).
func (b *Bus) publishRoutingTable() {
	topics := b.Registry.Topics()
	f := prob.NewFilter(len(topics), defaultFilterFPRate)
	for _, t := range topics {
		f.Add(t)
	}
	b.Self.RoutingTable = f.Bytes()
}

// Stop tears down the command servers, every scope's socket manager, and the
// pending-reply pool's trimmer.
func (b *Bus) Stop() {
	for _, s := range b.servers {
		if s != nil {
			s.Stop()
		}
	}
	b.Dispatcher.Stop()
	b.Pool.Close()
	hk.DefaultHK.Stop(nil)
}
