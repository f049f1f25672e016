package gossip

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"
)

func endpoints(n int) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, netip.MustParseAddrPort(fmt.Sprintf("10.9.0.%d:7946", i)))
	}
	return out
}

func TestFanOut_AllSucceed(t *testing.T) {
	var calls atomic.Int32
	acks, err := fanOut(context.Background(), endpoints(3), time.Second, func(context.Context, netip.AddrPort) error {
		calls.Add(1)
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if acks != 3 || calls.Load() != 3 {
		t.Errorf("Expected 3 acks and calls, got %d acks and %d calls", acks, calls.Load())
	}
}

func TestFanOut_PartialFailure(t *testing.T) {
	errDown := errors.New("replica failed")
	targets := endpoints(3)

	acks, err := fanOut(context.Background(), targets, time.Second, func(_ context.Context, endpoint netip.AddrPort) error {
		// Only the last endpoint fails
		if endpoint == targets[2] {
			return errDown
		}
		return nil
	})

	if acks != 2 {
		t.Errorf("Expected 2 acks, got %d", acks)
	}
	if !errors.Is(err, errDown) {
		t.Errorf("Expected error wrapping %v, got %v", errDown, err)
	}
}

func TestFanOut_Parallel(t *testing.T) {
	start := time.Now()
	acks, _ := fanOut(context.Background(), endpoints(5), time.Second, func(context.Context, netip.AddrPort) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	if acks != 5 {
		t.Errorf("Expected 5 acks, got %d", acks)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Expected parallel calls, took %v", elapsed)
	}
}

func TestFanOut_Timeout(t *testing.T) {
	acks, err := fanOut(context.Background(), endpoints(2), 20*time.Millisecond, func(ctx context.Context, _ netip.AddrPort) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if acks != 0 {
		t.Errorf("Expected 0 acks, got %d", acks)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestFanOut_NoEndpoints(t *testing.T) {
	acks, err := fanOut(context.Background(), nil, time.Second, func(context.Context, netip.AddrPort) error {
		t.Error("fn must not be called")
		return nil
	})
	if acks != 0 || err != nil {
		t.Errorf("Expected no acks and no error, got %d, %v", acks, err)
	}
}
