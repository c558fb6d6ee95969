package handler_test

import (
	"context"
	"testing"

	"github.com/tinylib/msgp/msgp"

	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/handler"
	"github.com/fastbus/fastbus/topic"
)

// pingMsg/pongMsg are minimal hand-written msgp types, the same style
// PeerContext uses, just enough to exercise the registry's codec plumbing.
type pingMsg struct{ Text string }

func (p *pingMsg) MarshalMsg(b []byte) ([]byte, error) { return msgp.AppendString(b, p.Text), nil }
func (p *pingMsg) UnmarshalMsg(b []byte) ([]byte, error) {
	s, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return b, err
	}
	p.Text = s
	return b, nil
}

type pongMsg struct{ Text string }

func (p *pongMsg) MarshalMsg(b []byte) ([]byte, error) { return msgp.AppendString(b, p.Text), nil }
func (p *pongMsg) UnmarshalMsg(b []byte) ([]byte, error) {
	s, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return b, err
	}
	p.Text = s
	return b, nil
}

var _ msgp.Marshaler = (*pingMsg)(nil)
var _ msgp.Unmarshaler = (*pingMsg)(nil)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, req *pingMsg) (*pongMsg, error) {
	return &pongMsg{Text: req.Text}, nil
}

type countingVoidHandler struct{ calls *int }

func (h countingVoidHandler) Handle(context.Context, *pingMsg) error {
	*h.calls++
	return nil
}

func TestRegisterValueRoundTrips(t *testing.T) {
	r := handler.NewRegistry()
	c := codec.Msgpack{}
	handler.RegisterValue[pingMsg, pongMsg](r, "test.Echo", c, func() handler.ValueHandler[pingMsg, pongMsg] {
		return echoHandler{}
	})

	topicHash := handler.Topic("test.Echo")
	fn, ok := r.Lookup(topicHash)
	if !ok {
		t.Fatal("expected a handler registered under the hashed topic")
	}

	req := &pingMsg{Text: "hello"}
	payload, err := c.Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	out, err := fn(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	var resp pongMsg
	if err := c.Decode(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello" {
		t.Fatalf("resp.Text = %q, want %q", resp.Text, "hello")
	}
}

func TestRegisterVoidFactoryRunsFreshPerDispatch(t *testing.T) {
	r := handler.NewRegistry()
	c := codec.Msgpack{}
	calls := 0
	handler.RegisterVoid[pingMsg](r, "test.Notify", c, func() handler.VoidHandler[pingMsg] {
		return countingVoidHandler{calls: &calls}
	})

	fn, _ := r.Lookup(handler.Topic("test.Notify"))
	payload, _ := c.Encode(&pingMsg{Text: "x"})
	for i := 0; i < 3; i++ {
		out, err := fn(context.Background(), payload)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 0 {
			t.Fatalf("void handler produced a non-empty reply: %v", out)
		}
	}
	if calls != 3 {
		t.Fatalf("handler invoked %d times, want 3", calls)
	}
}

func TestLookupUnknownTopicNeverRaises(t *testing.T) {
	r := handler.NewRegistry()
	if _, ok := r.Lookup(0xFFFFFFFF); ok {
		t.Fatal("expected Lookup to report false for an unregistered topic")
	}
}

func TestTopicsListsEveryRegisteredHash(t *testing.T) {
	r := handler.NewRegistry()
	c := codec.Msgpack{}
	handler.RegisterValue[pingMsg, pongMsg](r, "test.A", c, func() handler.ValueHandler[pingMsg, pongMsg] { return echoHandler{} })
	handler.RegisterValue[pingMsg, pongMsg](r, "test.B", c, func() handler.ValueHandler[pingMsg, pongMsg] { return echoHandler{} })

	got := r.Topics()
	if len(got) != 2 {
		t.Fatalf("Topics() returned %d hashes, want 2", len(got))
	}
	want := map[uint64]bool{topic.HashString("test.A"): true, topic.HashString("test.B"): true}
	for _, h := range got {
		if !want[h] {
			t.Fatalf("unexpected topic hash %d in Topics()", h)
		}
	}
}
