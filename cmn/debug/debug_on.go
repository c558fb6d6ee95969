//go:build debug

// Package debug provides debug-build-only assertions, compiled out entirely
// in release builds (see debug_off.go).
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Infof(format string, a ...any) { fmt.Printf("[debug] "+format+"\n", a...) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprint("assertion failed: ", fmt.Sprint(a...)))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: " + err.Error())
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, a...))
	}
}

func AssertNotPstr(v any) {
	if _, ok := v.(*string); ok {
		panic("assertion failed: unexpected *string")
	}
}

func FailTypeCast(v any) { panic(fmt.Sprintf("unexpected type %T", v)) }

func AssertMutexLocked(mu *sync.Mutex) {
	if mu.TryLock() {
		mu.Unlock()
		panic("assertion failed: mutex not locked")
	}
}

func AssertRWMutexLocked(mu *sync.RWMutex) {
	if mu.TryLock() {
		mu.Unlock()
		panic("assertion failed: rwmutex not locked")
	}
}

func AssertRWMutexRLocked(mu *sync.RWMutex) {
	if mu.TryRLock() {
		mu.RUnlock()
		panic("assertion failed: rwmutex not rlocked")
	}
}
