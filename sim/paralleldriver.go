package sim

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// A ParallelDriver polls the components of a pass from several goroutines.
// Each component is polled by exactly one goroutine per pass. Since values
// sent in a pass only become visible at the next pass boundary, the outcome
// of a pass does not depend on the polling order.
type ParallelDriver struct {
	*driverBase

	workers int
}

// NewParallelDriver creates a ParallelDriver. A non-positive worker count
// uses GOMAXPROCS.
func NewParallelDriver(mgr *Manager, workers int) *ParallelDriver {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	d := &ParallelDriver{
		driverBase: newDriverBase(mgr),
		workers:    workers,
	}
	d.poll = d.pollInParallel

	return d
}

// Workers returns the number of goroutines used per pass.
func (d *ParallelDriver) Workers() int {
	return d.workers
}

func (d *ParallelDriver) pollInParallel(comps []Component) (int, error) {
	workers := d.workers
	if workers > len(comps) {
		workers = len(comps)
	}

	var (
		observed atomic.Int64
		wg       sync.WaitGroup
	)

	errs := make([]error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := w; i < len(comps); i += workers {
				n, err := comps[i].PollRecv()
				observed.Add(int64(n))

				if err != nil && errs[w] == nil {
					errs[w] = err
				}
			}
		}(w)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return int(observed.Load()), err
		}
	}

	return int(observed.Load()), nil
}
