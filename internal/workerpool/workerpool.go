// Package workerpool runs a bounded number of goroutines over a batch
// of work, the same wg.Add/go func/wg.Wait shape the package_lock
// licenses fetcher uses for its unbounded gRPC fan-out, but capped by
// a semaphore channel so warming a metadata cache over a large
// repository doesn't open one goroutine (and one oracle round trip)
// per package simultaneously.
package workerpool

import "sync"

// Run calls fn once for each item in items, running at most
// concurrency calls at a time, and returns the first non-nil error
// any call produced. All goroutines finish running (even after the
// first error) before Run returns.
func Run[T any](items []T, concurrency int, fn func(T) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(item); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}
