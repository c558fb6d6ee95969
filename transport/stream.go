package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fastbus/fastbus/cmn/atomic"
	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
	"github.com/fastbus/fastbus/mesh"
)

const dialTimeout = 3 * time.Second

// streamConn is the Connection used for both IPC (Unix domain socket) and
// TCP (§4.4 transport selection): a net.Conn plus a read loop that feeds
// every decoded reply frame to onFrame and tears itself down on any
// transport error (§4.4 failure handling).
type streamConn struct {
	peer    *mesh.PeerContext
	nc      net.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// DialIPC connects to the peer's Unix domain socket,
// `/tmp/<application_name>.sock` (§6).
func DialIPC(peer *mesh.PeerContext, onFrame OnFrameFunc) (Connection, error) {
	path := IPCSocketPath(peer.ApplicationName)
	nc, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, cos.WrapTransport("dial ipc %s: %v", path, err)
	}
	return newStreamConn(peer, nc, onFrame), nil
}

// DialTCP connects to tcp://peer.address:peer.rpc_port (§6).
func DialTCP(peer *mesh.PeerContext, onFrame OnFrameFunc) (Connection, error) {
	addr := fmt.Sprintf("%s:%d", peer.Address, peer.RPCPort)
	nc, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, cos.WrapTransport("dial tcp %s: %v", addr, err)
	}
	return newStreamConn(peer, nc, onFrame), nil
}

// IPCSocketPath is the filesystem path backing `ipc://<application_name>`
// (§6); exported so the command server's IPC listener binds the same path.
func IPCSocketPath(applicationName string) string {
	return "/tmp/" + applicationName + ".sock"
}

func newStreamConn(peer *mesh.PeerContext, nc net.Conn, onFrame OnFrameFunc) *streamConn {
	c := &streamConn{peer: peer, nc: nc}
	go c.readLoop(onFrame)
	return c
}

func (c *streamConn) Peer() *mesh.PeerContext { return c.peer }

// Send writes one length-prefixed frame; the worker goroutine that owns this
// connection is already the only caller, and writeMu serializes any
// concurrent Send calls. Close does not take writeMu: a Close that races a
// Send closes the socket under it, and that Send returns the write error.
func (c *streamConn) Send(frame []byte) error {
	if c.closed.Load() {
		return cos.WrapTransport("connection to %s closed", c.peer.Address)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, frame)
}

func (c *streamConn) readLoop(onFrame OnFrameFunc) {
	for {
		frame, err := ReadFrame(c.nc)
		if err != nil {
			if !c.closed.Load() {
				nlog.Infof("transport: read loop for %s ended: %v", c.peer.Address, err)
			}
			c.Close()
			return
		}
		onFrame(frame)
	}
}

func (c *streamConn) Close() {
	if c.closed.CAS(false, true) {
		c.nc.Close()
	}
}
