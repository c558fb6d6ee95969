package reply

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
)

// Router demultiplexes incoming reply frames onto the Pending each
// correlation id names (C5). It is the only place a correlation id is
// looked up by value, so it is backed by xsync's lock-free map rather than
// a mutex-guarded one - every outbound connection's reply read loop and
// every concurrent scatter's gather both hit it on the hot path.
type Router struct {
	inflight *xsync.MapOf[uint64, *Pending]
}

func NewRouter() *Router {
	return &Router{inflight: xsync.NewMapOf[uint64, *Pending]()}
}

// Register makes p reachable by its correlation id until Unregister or a
// matching OnFrame fires. Callers must Unregister on their own timeout path
// (the router never times anything out itself, §4.3).
func (r *Router) Register(p *Pending) {
	r.inflight.Store(p.CorrelationID(), p)
}

// Unregister removes p's correlation id unconditionally; safe to call after
// the pending reply has already completed via OnFrame.
func (r *Router) Unregister(p *Pending) {
	r.inflight.Delete(p.CorrelationID())
}

// OnFrame is called by a socket connection's read loop for every decoded
// reply frame. A correlation id with no registrant (already timed out, or a
// stray/duplicate frame) is dropped silently - the scatter that owned it has
// moved on.
func (r *Router) OnFrame(correlationID uint64, payload []byte, decodeErr error) {
	p, ok := r.inflight.LoadAndDelete(correlationID)
	if !ok {
		nlog.Infof("reply: no pending registrant for correlation %d, dropping", correlationID)
		return
	}
	if decodeErr != nil {
		p.SetError(cos.WrapDecode("reply frame %d: %v", correlationID, decodeErr))
		return
	}
	p.SetResult(payload)
}

// Count reports the number of in-flight (unmatched) correlation ids; used by
// tests and diagnostics.
func (r *Router) Count() int { return r.inflight.Size() }
