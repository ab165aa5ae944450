package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewRequestID(t *testing.T) {
	reqID := NewRequestID()

	if !strings.HasPrefix(reqID.String(), RequestPrefix) {
		t.Errorf("RequestID should start with %q, got: %s", RequestPrefix, reqID)
	}
	if !IsRequestID(reqID.String()) {
		t.Errorf("RequestID should be valid: %s", reqID)
	}
	if IsSpanID(reqID.String()) {
		t.Errorf("RequestID must not look like a span id: %s", reqID)
	}
}

func TestNewSpanID(t *testing.T) {
	spanID := NewSpanID()

	if !strings.HasPrefix(spanID.String(), SpanPrefix) {
		t.Errorf("SpanID should start with %q, got: %s", SpanPrefix, spanID)
	}
	if !IsSpanID(spanID.String()) {
		t.Errorf("SpanID should be valid: %s", spanID)
	}
}

func TestIsRequestIDRejectsGarbage(t *testing.T) {
	cases := []string{"", "req-", "req-not-a-uuid", "span-" + strings.Repeat("a", 36)}
	for _, c := range cases {
		if IsRequestID(c) {
			t.Errorf("expected %q to be rejected", c)
		}
	}
}

func TestConnIDTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	connID := NewConnID()

	if !strings.HasPrefix(connID.String(), ConnPrefix) {
		t.Fatalf("ConnID should start with %q, got: %s", ConnPrefix, connID)
	}

	ts, err := ConnTimestamp(connID)
	if err != nil {
		t.Fatalf("ConnTimestamp failed: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of range", ts)
	}

	if _, err := ConnTimestamp("nope"); err == nil {
		t.Error("expected error for foreign id")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers = 8
	const perWorker = 250

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker*2)
			for i := 0; i < perWorker; i++ {
				local = append(local, NewConnID().String(), NewSpanID().String())
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker*2 {
		t.Errorf("expected %d unique ids, got %d", workers*perWorker*2, len(seen))
	}
}
