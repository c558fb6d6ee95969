package transport

import "github.com/fastbus/fastbus/mesh"

// Connection is a single outbound logical link to one peer, exclusively
// owned by the socket manager's worker (§5: "no lock is taken on the
// connection set by callers"). OnFrame, supplied at dial time, is called
// with each decoded reply frame's raw bytes (correlation_id | payload); the
// manager wires it straight to the reply router.
type Connection interface {
	Peer() *mesh.PeerContext
	Send(frame []byte) error
	Close()
}

// OnFrameFunc receives one raw reply frame as it arrives off a connection.
type OnFrameFunc func(frame []byte)
