// Package testutil holds helpers shared by connection-level tests.
package testutil

import (
	"runtime"
	"testing"
	"time"
)

// WaitForGoroutines polls until the goroutine count falls back to within
// margin of baseline, failing the test if it never does. Websocket pumps
// wind down asynchronously after a close, so allow a few seconds.
func WaitForGoroutines(t *testing.T, baseline, margin int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		current := runtime.NumGoroutine()
		if current <= baseline+margin {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("goroutines never settled: baseline %d, still %d after %v", baseline, current, 5*time.Second)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
