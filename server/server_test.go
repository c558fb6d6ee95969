package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/handler"
	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/server"
	"github.com/fastbus/fastbus/transport"
)

type greetCmd struct{ Name string }

func (c *greetCmd) MarshalMsg(b []byte) ([]byte, error) { return msgp.AppendString(b, c.Name), nil }
func (c *greetCmd) UnmarshalMsg(b []byte) ([]byte, error) {
	s, rest, err := msgp.ReadStringBytes(b)
	if err != nil {
		return rest, err
	}
	c.Name = s
	return rest, nil
}

type greetResp struct{ Text string }

func (r *greetResp) MarshalMsg(b []byte) ([]byte, error) { return msgp.AppendString(b, r.Text), nil }
func (r *greetResp) UnmarshalMsg(b []byte) ([]byte, error) {
	s, rest, err := msgp.ReadStringBytes(b)
	if err != nil {
		return rest, err
	}
	r.Text = s
	return rest, nil
}

type greetHandler struct{}

func (greetHandler) Handle(_ context.Context, req *greetCmd) (*greetResp, error) {
	return &greetResp{Text: "hello, " + req.Name}, nil
}

// TestServerInprocRoundTrip dials the server's in-process listener directly
// (bypassing the socket manager/scope layers, which have their own tests)
// to exercise dispatch (§4.7 steps 1-3) end to end.
func TestServerInprocRoundTrip(t *testing.T) {
	registry := handler.NewRegistry()
	c := codec.Msgpack{}
	handler.RegisterValue[greetCmd, greetResp](registry, "server_test.Greet", c, func() handler.ValueHandler[greetCmd, greetResp] {
		return greetHandler{}
	})

	srv := server.New("server-test-inproc", registry, 31000)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	req := &greetCmd{Name: "fastbus"}
	payload, err := c.Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	frame := transport.EncodeRequest(handler.Topic("server_test.Greet"), 1, payload)

	replies := make(chan []byte, 1)
	onFrame := func(f []byte) {
		_, respPayload, derr := transport.DecodeReply(f)
		if derr != nil {
			t.Error(derr)
			return
		}
		replies <- respPayload
	}
	peer := &mesh.PeerContext{ApplicationName: "server-test-inproc"}
	conn, err := transport.DialInproc(peer, onFrame)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatal(err)
	}

	select {
	case respPayload := <-replies:
		var resp greetResp
		if err := c.Decode(respPayload, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Text != "hello, fastbus" {
			t.Fatalf("resp.Text = %q, want %q", resp.Text, "hello, fastbus")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never replied")
	}
}

// TestServerUnknownTopicRepliesEmpty covers §7: a missing handler yields an
// empty reply payload, indistinguishable from a handler error to the client.
func TestServerUnknownTopicRepliesEmpty(t *testing.T) {
	registry := handler.NewRegistry()
	srv := server.New("server-test-unknown", registry, 31050)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	frame := transport.EncodeRequest(0xDEADBEEF, 1, nil)
	replies := make(chan []byte, 1)
	onFrame := func(f []byte) {
		_, respPayload, _ := transport.DecodeReply(f)
		replies <- respPayload
	}
	peer := &mesh.PeerContext{ApplicationName: "server-test-unknown"}
	conn, err := transport.DialInproc(peer, onFrame)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatal(err)
	}

	select {
	case respPayload := <-replies:
		if len(respPayload) != 0 {
			t.Fatalf("expected an empty reply for an unknown topic, got %d byte(s)", len(respPayload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never replied")
	}
}

func TestServerBindsDistinctTCPPortsAcrossInstances(t *testing.T) {
	registry := handler.NewRegistry()
	s1 := server.New("server-test-a", registry, 31100)
	if err := s1.Start(); err != nil {
		t.Fatal(err)
	}
	defer s1.Stop()

	s2 := server.New("server-test-b", registry, 31100)
	if err := s2.Start(); err != nil {
		t.Fatal(err)
	}
	defer s2.Stop()

	if s1.BoundPort() == s2.BoundPort() {
		t.Fatalf("two servers scanning the same base port both bound %d", s1.BoundPort())
	}
}

type waitForCancelHandler struct{ cancelled chan<- bool }

func (h waitForCancelHandler) Handle(ctx context.Context, _ *greetCmd) (*greetResp, error) {
	<-ctx.Done()
	h.cancelled <- true
	return &greetResp{}, ctx.Err()
}

// TestServerStopCancelsInFlightHandlerContext covers §5: dispatch must hand
// handlers a context cancelled on Stop, not context.Background().
func TestServerStopCancelsInFlightHandlerContext(t *testing.T) {
	registry := handler.NewRegistry()
	c := codec.Msgpack{}
	cancelled := make(chan bool, 1)
	handler.RegisterValue[greetCmd, greetResp](registry, "server_test.WaitForCancel", c, func() handler.ValueHandler[greetCmd, greetResp] {
		return waitForCancelHandler{cancelled: cancelled}
	})

	srv := server.New("server-test-cancel", registry, 31150)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}

	req := &greetCmd{Name: "fastbus"}
	payload, err := c.Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	frame := transport.EncodeRequest(handler.Topic("server_test.WaitForCancel"), 1, payload)

	peer := &mesh.PeerContext{ApplicationName: "server-test-cancel"}
	conn, err := transport.DialInproc(peer, func([]byte) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatal(err)
	}

	// Give the handler goroutine a moment to reach <-ctx.Done() before
	// tearing the server down.
	time.Sleep(50 * time.Millisecond)
	srv.Stop()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never cancelled the in-flight handler's context")
	}
}
