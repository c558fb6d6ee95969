package transport

import (
	stdatomic "sync/atomic"

	"github.com/fastbus/fastbus/cmn/atomic"
	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/reply"
)

// Kind selects which transport a scope's socket manager dials (§4.4).
type Kind int

const (
	KindInproc Kind = iota
	KindIPC
	KindTCP
)

// ScheduleCommand is the message a command scope enqueues to get one frame
// sent to one peer (§3, §4.4 send path).
type ScheduleCommand struct {
	MeshID        uint64
	Topic         uint64
	CorrelationID uint64
	Payload       []byte
}

// socketCommand is the install/remove half of the worker's mailbox (§5
// "Per-connection worker mailbox"); membership changes never touch conns
// directly from the caller's goroutine.
type socketCommand struct {
	install *mesh.PeerContext
	removeID uint64
	isRemove bool
}

type connEntry struct {
	peer *mesh.PeerContext
	conn Connection
}

const (
	mailboxSize  = 4096
	scheduleSize = 4096
)

// Manager is the per-scope socket manager (C6): one admission predicate,
// one transport kind, one dedicated worker goroutine owning the connection
// set, reachable only through bounded channels (§5).
type Manager struct {
	name      string
	predicate Predicate
	kind      Kind
	router    *reply.Router

	byID map[uint64]*connEntry // worker-goroutine-only
	// snapshot is an immutable slice of *connEntry, swapped atomically on
	// every membership change so iter/count/get never block on or contend
	// with the worker (§5: "No lock is taken on the connection set by
	// callers").
	snapshot stdatomic.Pointer[[]*connEntry]
	// appIndex buckets snapshot by cos.HashString(peer.ApplicationName), so
	// Get (looked up by application_name, §4.4 queries) doesn't linear-scan
	// the whole connection set on every call; rebuilt alongside snapshot.
	appIndex stdatomic.Pointer[map[uint64][]*connEntry]

	mailbox  chan socketCommand
	schedule chan ScheduleCommand
	stopCh   *cos.StopCh

	disposed    atomic.Bool
	mailboxHWM  atomic.Int64 // high-water mark of schedule channel occupancy (§5 backpressure)
	sentBatches atomic.Int64 // monotonic count of frames sent, for monitoring (§5)
}

// NewManager builds a socket manager for one scope; call Run in its own
// goroutine and Stop to tear it down. bus feeds it PeerJoined/PeerLeft.
func NewManager(name string, predicate Predicate, kind Kind, router *reply.Router, bus *mesh.EventBus) *Manager {
	m := &Manager{
		name:      name,
		predicate: predicate,
		kind:      kind,
		router:    router,
		byID:      make(map[uint64]*connEntry),
		mailbox:   make(chan socketCommand, mailboxSize),
		schedule:  make(chan ScheduleCommand, scheduleSize),
		stopCh:    cos.NewStopCh(),
	}
	empty := make([]*connEntry, 0)
	m.snapshot.Store(&empty)
	emptyIndex := make(map[uint64][]*connEntry)
	m.appIndex.Store(&emptyIndex)
	bus.OnPeerJoined(func(e mesh.PeerJoined) { m.offerJoined(e.Peer) })
	bus.OnPeerLeft(func(e mesh.PeerLeft) { m.offerLeft(e.Peer.MeshID) })
	return m
}

func (m *Manager) Name() string { return "socket-manager." + m.name }

// offerJoined/offerLeft are called from the event bus's dispatch goroutine;
// they only ever enqueue, never touch byID directly.
func (m *Manager) offerJoined(p *mesh.PeerContext) {
	if m.disposed.Load() {
		return
	}
	select {
	case m.mailbox <- socketCommand{install: p}:
	default:
		nlog.Warningf("%s: mailbox full, dropping join for mesh_id %d", m.Name(), p.MeshID)
	}
}

func (m *Manager) offerLeft(meshID uint64) {
	if m.disposed.Load() {
		return
	}
	select {
	case m.mailbox <- socketCommand{removeID: meshID, isRemove: true}:
	default:
		nlog.Warningf("%s: mailbox full, dropping leave for mesh_id %d", m.Name(), meshID)
	}
}

// Schedule enqueues a send; the worker goroutine is the only one that ever
// touches the underlying connection (§4.4 send path).
func (m *Manager) Schedule(cmd ScheduleCommand) {
	if m.disposed.Load() {
		return
	}
	select {
	case m.schedule <- cmd:
		if n := int64(len(m.schedule)); n > m.mailboxHWM.Load() {
			m.mailboxHWM.Store(n)
		}
	default:
		nlog.Warningf("%s: schedule mailbox full, dropping send for mesh_id %d topic %d", m.Name(), cmd.MeshID, cmd.Topic)
	}
}

// Run is the worker loop; callers do `go manager.Run()` once at startup.
func (m *Manager) Run() error {
	for {
		select {
		case sc := <-m.mailbox:
			m.handleSocketCommand(sc)
		case cmd := <-m.schedule:
			m.handleSchedule(cmd)
		case <-m.stopCh.Listen():
			m.disposeAll()
			return nil
		}
	}
}

func (m *Manager) Stop(err error) {
	if err != nil {
		nlog.Warningf("%s stopping: %v", m.Name(), err)
	}
	m.disposed.Store(true)
	m.stopCh.Close()
}

func (m *Manager) handleSocketCommand(sc socketCommand) {
	if sc.isRemove {
		m.remove(sc.removeID)
		return
	}
	m.install(sc.install)
}

// install runs the admission predicate and, on acceptance, dials the
// scope's transport and replaces any prior connection with the same
// mesh_id (§4.4 "On PeerJoined").
func (m *Manager) install(peer *mesh.PeerContext) {
	if !m.predicate(peer) {
		return
	}
	if old, ok := m.byID[peer.MeshID]; ok {
		old.conn.Close()
		delete(m.byID, peer.MeshID)
	}
	conn, err := m.dial(peer)
	if err != nil {
		nlog.Warningf("%s: dial mesh_id %d: %v", m.Name(), peer.MeshID, err)
		return
	}
	m.byID[peer.MeshID] = &connEntry{peer: peer, conn: conn}
	m.publishSnapshot()
}

func (m *Manager) dial(peer *mesh.PeerContext) (Connection, error) {
	onFrame := func(frame []byte) {
		corr, payload, err := DecodeReply(frame)
		if err != nil {
			nlog.Warningf("%s: malformed reply frame from mesh_id %d: %v", m.Name(), peer.MeshID, err)
			return
		}
		m.router.OnFrame(corr, payload, nil)
	}
	switch m.kind {
	case KindInproc:
		return DialInproc(peer, onFrame)
	case KindIPC:
		return DialIPC(peer, onFrame)
	default:
		return DialTCP(peer, onFrame)
	}
}

func (m *Manager) remove(meshID uint64) {
	entry, ok := m.byID[meshID]
	if !ok {
		return
	}
	entry.conn.Close()
	delete(m.byID, meshID)
	m.publishSnapshot()
}

func (m *Manager) disposeAll() {
	for id, entry := range m.byID {
		entry.conn.Close()
		delete(m.byID, id)
	}
	m.publishSnapshot()
}

func (m *Manager) publishSnapshot() {
	snap := make([]*connEntry, 0, len(m.byID))
	index := make(map[uint64][]*connEntry, len(m.byID))
	for _, entry := range m.byID {
		snap = append(snap, entry)
		h := cos.HashString(entry.peer.ApplicationName)
		index[h] = append(index[h], entry)
	}
	m.snapshot.Store(&snap)
	m.appIndex.Store(&index)
}

func (m *Manager) handleSchedule(cmd ScheduleCommand) {
	entry, ok := m.byID[cmd.MeshID]
	if !ok {
		// peer disappeared between iter() and schedule(); the caller's
		// pending reply will fault by timeout (§4.4 failure).
		return
	}
	frame := EncodeRequest(cmd.Topic, cmd.CorrelationID, cmd.Payload)
	if err := entry.conn.Send(frame); err != nil {
		nlog.Warningf("%s: send to mesh_id %d: %v", m.Name(), cmd.MeshID, err)
		m.remove(cmd.MeshID)
		return
	}
	m.sentBatches.Add(1)
}

// Count returns the number of active connections (§4.4 queries).
func (m *Manager) Count() int {
	snap := m.snapshot.Load()
	return len(*snap)
}

// Iter yields up to max connections whose peer's routing filter admits
// topic (§4.4). Order is the snapshot's iteration order, stable within this
// one call.
func (m *Manager) Iter(max int, topic uint64) []*mesh.PeerContext {
	snap := *m.snapshot.Load()
	out := make([]*mesh.PeerContext, 0, min(max, len(snap)))
	for _, entry := range snap {
		if len(out) >= max {
			break
		}
		if entry.peer.MightHandle(topic) {
			out = append(out, entry.peer)
		}
	}
	return out
}

// Get returns the first connection whose peer has applicationName and whose
// filter admits topic (§4.4). Candidates are narrowed via appIndex, a
// cos.HashString bucket of the snapshot, rather than scanning every
// connection the manager holds.
func (m *Manager) Get(applicationName string, topic uint64) (*mesh.PeerContext, bool) {
	index := *m.appIndex.Load()
	for _, entry := range index[cos.HashString(applicationName)] {
		if entry.peer.ApplicationName == applicationName && entry.peer.MightHandle(topic) {
			return entry.peer, true
		}
	}
	return nil, false
}

// MailboxHighWaterMark and SentBatches expose the counters §5 backpressure
// requires implementations to surface for monitoring.
func (m *Manager) MailboxHighWaterMark() int64 { return m.mailboxHWM.Load() }
func (m *Manager) SentBatches() int64          { return m.sentBatches.Load() }
