package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastbus/fastbus/metrics"
)

type fakeManager struct {
	hwm  int64
	sent int64
}

func (f *fakeManager) MailboxHighWaterMark() int64 { return f.hwm }
func (f *fakeManager) SentBatches() int64          { return f.sent }

type fakePool struct{ live, idle int }

func (f *fakePool) LiveCount() int { return f.live }
func (f *fakePool) IdleCount() int { return f.idle }

type fakeRouter struct{ count int }

func (f *fakeRouter) Count() int { return f.count }

func TestRegisterManagerExposesCurrentValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := &fakeManager{hwm: 42, sent: 7}
	if err := metrics.RegisterManager(reg, "local", m); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sawHWM, sawSent bool
	for _, fam := range families {
		switch fam.GetName() {
		case "fastbus_socket_manager_mailbox_high_water_mark":
			sawHWM = true
			if got := fam.Metric[0].GetGauge().GetValue(); got != 42 {
				t.Fatalf("high-water mark = %v, want 42", got)
			}
		case "fastbus_socket_manager_sent_batches_total":
			sawSent = true
			if got := fam.Metric[0].GetCounter().GetValue(); got != 7 {
				t.Fatalf("sent batches = %v, want 7", got)
			}
		}
	}
	if !sawHWM || !sawSent {
		t.Fatalf("missing expected metric families: hwm=%v sent=%v", sawHWM, sawSent)
	}
}

func TestRegisterPoolExposesLiveAndIdle(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &fakePool{live: 10, idle: 3}
	if err := metrics.RegisterPool(reg, "default", p); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]float64{}
	for _, fam := range families {
		found[fam.GetName()] = fam.Metric[0].GetGauge().GetValue()
	}
	if found["fastbus_reply_pool_live"] != 10 {
		t.Fatalf("live = %v, want 10", found["fastbus_reply_pool_live"])
	}
	if found["fastbus_reply_pool_idle"] != 3 {
		t.Fatalf("idle = %v, want 3", found["fastbus_reply_pool_idle"])
	}
}

func TestRegisterRouterExposesInflightCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := &fakeRouter{count: 5}
	if err := metrics.RegisterRouter(reg, r); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 1 || families[0].GetName() != "fastbus_reply_router_inflight" {
		t.Fatalf("unexpected families: %+v", families)
	}
	if got := families[0].Metric[0].GetGauge().GetValue(); got != 5 {
		t.Fatalf("inflight = %v, want 5", got)
	}
}

func TestDoubleRegisterSameCollectorErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := &fakeRouter{count: 0}
	if err := metrics.RegisterRouter(reg, r); err != nil {
		t.Fatal(err)
	}
	if err := metrics.RegisterRouter(reg, r); err == nil {
		t.Fatal("expected an AlreadyRegisteredError on a second registration of the same metric name")
	}
}
