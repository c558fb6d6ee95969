// Package nlog is the fastbus logger: buffered, leveled, and cheap enough to
// call from the hot scatter/gather path. It intentionally does not pull in a
// structured-logging dependency - the mesh already hands every log line a
// natural key (peer, topic, correlation id) via Errorf/Infof formatting, the
// way the teacher's own nlog package does it.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fastbus/fastbus/cmn/atomic"
	"github.com/fastbus/fastbus/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChar = "IWE"

var (
	mu        sync.Mutex
	out       io.Writer = os.Stderr
	buffered  *bufio.Writer
	toStderr            = true
	lastFlush atomic.Int64
)

// SetOutput redirects subsequent log lines to w, buffering writes; call
// Flush (or let the periodic flusher run) to guarantee delivery before exit.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	buffered = bufio.NewWriterSize(w, 32*1024)
	toStderr = false
}

func Infof(format string, a ...any)    { log(sevInfo, format, a...) }
func Infoln(a ...any)                  { log(sevInfo, "", a...) }
func Warningf(format string, a ...any) { log(sevWarn, format, a...) }
func Warningln(a ...any)               { log(sevWarn, "", a...) }
func Errorf(format string, a ...any)   { log(sevErr, format, a...) }
func Errorln(a ...any)                 { log(sevErr, "", a...) }

func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if buffered != nil {
		buffered.Flush()
	}
}

func log(sev severity, format string, a ...any) {
	line := format1(sev, format, a...)
	mu.Lock()
	defer mu.Unlock()
	if toStderr || buffered == nil {
		io.WriteString(out, line)
		return
	}
	buffered.WriteString(line)
	// errors and warnings are flushed immediately; info amortizes. The
	// amortization clock is monotonic (mono.NanoTime) rather than wall time
	// so an NTP step never stalls or storms the flush.
	if sev >= sevWarn || mono.NanoTime()-lastFlush.Load() > int64(time.Second) {
		buffered.Flush()
		lastFlush.Store(mono.NanoTime())
	}
}

func format1(sev severity, format string, a ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, file, line, ok := runtime.Caller(3); ok {
		b.WriteString(filepath.Base(file))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(line))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, a...)
	} else {
		fmt.Fprintf(&b, format, a...)
		b.WriteByte('\n')
	}
	return b.String()
}
