// Package server implements the command server (C9): three listeners
// (in-process, IPC, TCP) that parse request frames, dispatch through the
// handler registry, and write back a reply frame on the same connection.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
	"github.com/fastbus/fastbus/handler"
	"github.com/fastbus/fastbus/transport"
)

const tcpPortScanWidth = 200

// Server is one command-server instance bound to a channel name (§4.7).
// Scale-out starts several, each with a distinct name, all sharing the same
// *handler.Registry.
type Server struct {
	name        string
	registry    *handler.Registry
	rpcPortBase uint16

	inprocEP    *transport.Endpoint
	ipcListener net.Listener
	tcpListener net.Listener
	boundPort   uint16

	stopCh *cos.StopCh
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a server bound to channel name (typically the application name,
// or applicationName-N for additional scale-out instances, §4.7).
func New(name string, registry *handler.Registry, rpcPortBase uint16) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		name:        name,
		registry:    registry,
		rpcPortBase: rpcPortBase,
		stopCh:      cos.NewStopCh(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Server) Name() string { return "command-server." + s.name }

// BoundPort is the TCP port this instance ended up on; publish it into the
// local PeerContext.RPCPort after Start returns (§4.7).
func (s *Server) BoundPort() uint16 { return s.boundPort }

// Start binds all three listeners and runs each on its own goroutine; it
// returns once every listener is bound, well before any request arrives.
func (s *Server) Start() error {
	s.inprocEP = transport.RegisterEndpoint(s.name)
	go s.runInproc()

	ipcLis, err := net.Listen("unix", transport.IPCSocketPath(s.name))
	if err != nil {
		return cos.WrapTransport("%s: ipc listen: %v", s.Name(), err)
	}
	s.ipcListener = ipcLis
	go s.runStream(ipcLis)

	tcpLis, port, err := s.bindTCP()
	if err != nil {
		return err
	}
	s.tcpListener = tcpLis
	s.boundPort = port
	go s.runStream(tcpLis)
	return nil
}

func (s *Server) bindTCP() (net.Listener, uint16, error) {
	end := s.rpcPortBase + tcpPortScanWidth
	for port := s.rpcPortBase; port < end; port++ {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return lis, port, nil
		}
	}
	return nil, 0, cos.WrapTransport("%s: no free tcp port in [%d,%d)", s.Name(), s.rpcPortBase, end)
}

// Stop closes every listener and cancels the server's context, which §5
// propagates into every still-running handler closure's cancel token.
// In-flight handlers are allowed to finish; they simply observe ctx.Done().
func (s *Server) Stop() {
	s.stopCh.Close()
	s.cancel()
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	if s.ipcListener != nil {
		s.ipcListener.Close()
	}
	if s.inprocEP != nil {
		s.inprocEP.Close()
	}
}

func (s *Server) runInproc() {
	for {
		frame, replyCh, ok := s.inprocEP.Accept()
		if !ok {
			return
		}
		go s.handleInproc(frame, replyCh)
	}
}

func (s *Server) handleInproc(frame []byte, replyCh chan<- []byte) {
	corr, replyPayload := s.dispatch(s.ctx, frame)
	replyCh <- transport.EncodeReply(corr, replyPayload)
}

func (s *Server) runStream(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.stopCh.Listen():
				return
			default:
				nlog.Warningf("%s: accept: %v", s.Name(), err)
				return
			}
		}
		go s.serveConn(conn)
	}
}

// serveConn reads framed requests off conn until it errs or closes.
// Dispatch runs on its own goroutine per request (§4.7: "the server does
// not wait for the handler before accepting the next request"); writeMu
// serializes the resulting out-of-order replies onto the one connection.
// connCtx is cancelled the moment the connection goes away (return/defer),
// so any handler still running against it observes cancellation instead of
// writing a reply nobody will read (§5 handler cancel token).
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	var writeMu sync.Mutex
	for {
		frame, err := transport.ReadFrame(conn)
		if err != nil {
			return
		}
		go func(frame []byte) {
			corr, replyPayload := s.dispatch(connCtx, frame)
			reply := transport.EncodeReply(corr, replyPayload)
			writeMu.Lock()
			defer writeMu.Unlock()
			if werr := transport.WriteFrame(conn, reply); werr != nil {
				nlog.Warningf("%s: write reply: %v", s.Name(), werr)
			}
		}(frame)
	}
}

// dispatch implements §4.7 steps 1-3: parse the frame, look up the handler,
// run it, and return the correlation id plus reply payload (empty on a
// missing handler or a handler error - the two are indistinguishable to the
// client, §7 HandlerNotFound). ctx is cancelled on Stop (and, for stream
// transports, on connection close), and is the cancel token §5 promises the
// handler closure.
func (s *Server) dispatch(ctx context.Context, frame []byte) (correlationID uint64, replyPayload []byte) {
	topic, corr, payload, err := transport.DecodeRequest(frame)
	if err != nil {
		nlog.Warningf("%s: malformed request frame: %v", s.Name(), err)
		return 0, nil
	}
	fn, ok := s.registry.Lookup(topic)
	if !ok {
		return corr, nil
	}
	out, err := fn(ctx, payload)
	if err != nil {
		nlog.Warningf("%s: handler error for topic %d: %v", s.Name(), topic, err)
		return corr, nil
	}
	return corr, out
}
