package transport

import (
	"sync"

	"github.com/fastbus/fastbus/cmn/atomic"
	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/mesh"
)

// inprocMailboxSize bounds the in-process listener's backlog; separate from
// the manager's own schedule mailbox (scheduleSize), the per-endpoint inbox
// here guards against a runaway same-process caller starving its own server
// loop.
const inprocMailboxSize = 1024

// inprocRequest carries one frame across the channel boundary, paired with
// a one-shot, one-slot reply channel: the server sends one reply frame on
// it, or the listener may close it to abandon the request.
type inprocRequest struct {
	frame []byte
	reply chan []byte
}

// Endpoint is the in-process listener side of the `inproc://<application>`
// transport (§6): a named inbox the local command server drains, standing
// in for an OS socket when sender and receiver are the same process.
type Endpoint struct {
	name    string
	inbound chan inprocRequest
}

var inprocRegistry sync.Map // name -> *Endpoint

// RegisterEndpoint creates (or replaces) the in-process listener for name,
// the application's own `applicationName` channel (§4.7).
func RegisterEndpoint(name string) *Endpoint {
	ep := &Endpoint{name: name, inbound: make(chan inprocRequest, inprocMailboxSize)}
	inprocRegistry.Store(name, ep)
	return ep
}

// UnregisterEndpoint removes the listener; idempotent.
func UnregisterEndpoint(name string) { inprocRegistry.Delete(name) }

func lookupEndpoint(name string) (*Endpoint, bool) {
	v, ok := inprocRegistry.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Endpoint), true
}

// Accept blocks for the next inbound request frame; the caller (the
// in-process listener in the command server) must eventually send exactly
// one reply frame on the returned channel, or close it to abandon the
// request.
func (e *Endpoint) Accept() (frame []byte, reply chan<- []byte, ok bool) {
	req, ok := <-e.inbound
	if !ok {
		return nil, nil, false
	}
	return req.frame, req.reply, true
}

// Close removes the endpoint from the registry, so later DialInproc calls
// for its name fail. It does not close or drain the inbox: Accept keeps
// blocking, connections dialed earlier can still enqueue frames, and no
// reply channel is closed.
func (e *Endpoint) Close() {
	inprocRegistry.Delete(e.name)
}

// inprocConn is the dial-side Connection for Local-scope peers: delivering a
// frame is a channel send plus a goroutine waiting on the one-shot reply,
// not a real socket round trip.
type inprocConn struct {
	peer    *mesh.PeerContext
	ep      *Endpoint
	onFrame OnFrameFunc
	closed  atomic.Bool
}

// DialInproc "connects" to the in-process listener registered under the
// peer's application name.
func DialInproc(peer *mesh.PeerContext, onFrame OnFrameFunc) (Connection, error) {
	ep, ok := lookupEndpoint(peer.ApplicationName)
	if !ok {
		return nil, cos.WrapTransport("no in-process listener registered for application %q", peer.ApplicationName)
	}
	return &inprocConn{peer: peer, ep: ep, onFrame: onFrame}, nil
}

func (c *inprocConn) Peer() *mesh.PeerContext { return c.peer }

func (c *inprocConn) Send(frame []byte) error {
	if c.closed.Load() {
		return cos.WrapTransport("in-process connection to %q closed", c.peer.ApplicationName)
	}
	req := inprocRequest{frame: frame, reply: make(chan []byte, 1)}
	select {
	case c.ep.inbound <- req:
	default:
		return cos.WrapTransport("in-process mailbox full for application %q", c.peer.ApplicationName)
	}
	go func() {
		if rf, ok := <-req.reply; ok {
			c.onFrame(rf)
		}
	}()
	return nil
}

func (c *inprocConn) Close() { c.closed.Store(true) }
