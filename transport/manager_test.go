package transport_test

import (
	"testing"
	"time"

	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/reply"
	"github.com/fastbus/fastbus/transport"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManagerInstallsAdmittedPeerAndSchedulesAFrame(t *testing.T) {
	router := reply.NewRouter()
	bus := mesh.NewEventBus()
	m := transport.NewManager("test-local", transport.LocalPredicate(), transport.KindInproc, router, bus)
	go m.Run()
	defer m.Stop(nil)

	ep := transport.RegisterEndpoint("app-under-test")
	defer transport.UnregisterEndpoint("app-under-test")

	peer := &mesh.PeerContext{MeshID: 1, ApplicationName: "app-under-test", IsSelf: true}
	bus.FireJoined(peer)

	waitUntil(t, time.Second, func() bool { return m.Count() == 1 })

	received := make(chan []byte, 1)
	go func() {
		frame, replyCh, ok := ep.Accept()
		if !ok {
			return
		}
		received <- frame
		replyCh <- transport.EncodeReply(99, []byte("ack"))
	}()

	m.Schedule(transport.ScheduleCommand{MeshID: 1, Topic: 7, CorrelationID: 99, Payload: []byte("ping")})

	select {
	case frame := <-received:
		topic, corr, payload, err := transport.DecodeRequest(frame)
		if err != nil {
			t.Fatal(err)
		}
		if topic != 7 || corr != 99 || string(payload) != "ping" {
			t.Fatalf("unexpected request frame: topic=%d corr=%d payload=%q", topic, corr, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("endpoint never received the scheduled frame")
	}
}

func TestManagerRejectsNonAdmittedPeer(t *testing.T) {
	router := reply.NewRouter()
	bus := mesh.NewEventBus()
	m := transport.NewManager("test-local-reject", transport.LocalPredicate(), transport.KindInproc, router, bus)
	go m.Run()
	defer m.Stop(nil)

	bus.FireJoined(&mesh.PeerContext{MeshID: 2, ApplicationName: "other", IsSelf: false})

	// Give the worker goroutine a chance to process the (rejected) join, then
	// assert the connection set stayed empty.
	time.Sleep(50 * time.Millisecond)
	if got := m.Count(); got != 0 {
		t.Fatalf("count = %d, want 0 for a peer the predicate rejects", got)
	}
}

func TestManagerRemovesPeerOnLeft(t *testing.T) {
	router := reply.NewRouter()
	bus := mesh.NewEventBus()
	m := transport.NewManager("test-local-leave", transport.LocalPredicate(), transport.KindInproc, router, bus)
	go m.Run()
	defer m.Stop(nil)

	transport.RegisterEndpoint("leaving-app")
	defer transport.UnregisterEndpoint("leaving-app")

	peer := &mesh.PeerContext{MeshID: 3, ApplicationName: "leaving-app", IsSelf: true}
	bus.FireJoined(peer)
	waitUntil(t, time.Second, func() bool { return m.Count() == 1 })

	bus.FireLeft(peer)
	waitUntil(t, time.Second, func() bool { return m.Count() == 0 })
}

func TestManagerIterFiltersByRoutingTable(t *testing.T) {
	router := reply.NewRouter()
	bus := mesh.NewEventBus()
	m := transport.NewManager("test-iter", transport.NetworkPredicate(), transport.KindInproc, router, bus)
	go m.Run()
	defer m.Stop(nil)

	transport.RegisterEndpoint("iter-app")
	defer transport.UnregisterEndpoint("iter-app")

	// Nil routing table means "accepts any topic" (§4.1 semantics exercised
	// transitively via PeerContext.MightHandle).
	peer := &mesh.PeerContext{MeshID: 4, ApplicationName: "iter-app"}
	bus.FireJoined(peer)
	waitUntil(t, time.Second, func() bool { return m.Count() == 1 })

	got := m.Iter(10, 0xDEADBEEF)
	if len(got) != 1 {
		t.Fatalf("Iter returned %d peers, want 1 for a peer with no routing table", len(got))
	}
}

func TestManagerGetFindsAdmittedPeerByApplicationName(t *testing.T) {
	router := reply.NewRouter()
	bus := mesh.NewEventBus()
	m := transport.NewManager("test-get", transport.LocalPredicate(), transport.KindInproc, router, bus)
	go m.Run()
	defer m.Stop(nil)

	transport.RegisterEndpoint("get-app")
	defer transport.UnregisterEndpoint("get-app")

	peer := &mesh.PeerContext{MeshID: 5, ApplicationName: "get-app", IsSelf: true}
	bus.FireJoined(peer)
	waitUntil(t, time.Second, func() bool { return m.Count() == 1 })

	found, ok := m.Get("get-app", 0xDEADBEEF)
	if !ok || found.MeshID != peer.MeshID {
		t.Fatalf("Get(%q) = %v, %v; want mesh_id %d", "get-app", found, ok, peer.MeshID)
	}

	if _, ok := m.Get("no-such-app", 0xDEADBEEF); ok {
		t.Fatal("Get matched an application_name that was never installed")
	}
}
