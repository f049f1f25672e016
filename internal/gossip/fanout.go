package gossip

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// fanOut calls fn for every endpoint in parallel, each call bounded by
// timeout, and returns how many calls succeeded along with their errors.
func fanOut(ctx context.Context, endpoints []netip.AddrPort, timeout time.Duration, fn func(ctx context.Context, endpoint netip.AddrPort) error) (int, error) {
	var (
		mu   sync.Mutex
		acks int
		errs error
		wg   sync.WaitGroup
	)

	for _, endpoint := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := fn(callCtx, endpoint)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
				return
			}
			acks++
		}()
	}

	wg.Wait()
	return acks, errs
}
