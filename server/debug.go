package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttpadaptor"
)

// DebugServer is an optional, separate fasthttp listener exposing
// prometheus text exposition alongside the command server; it is not part
// of the wire protocol in §3/§6, purely an operational aid. It serves
// promhttp.Handler(), i.e. prometheus's default registry; the counters Bus
// registers on its own Bus.Metrics registry do not appear there.
type DebugServer struct {
	srv *fasthttp.Server
}

// NewDebugServer wraps promhttp's handler for fasthttp via fasthttpadaptor,
// the way the teacher bridges net/http-shaped middleware onto its own
// fasthttp-based stats endpoint.
func NewDebugServer() *DebugServer {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return &DebugServer{srv: &fasthttp.Server{Handler: h}}
}

// ListenAndServe blocks serving /metrics on addr (e.g. ":9100").
func (d *DebugServer) ListenAndServe(addr string) error {
	return d.srv.ListenAndServe(addr)
}

func (d *DebugServer) Shutdown() error {
	return d.srv.Shutdown()
}
