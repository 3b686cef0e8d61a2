/*package device models the data-parallel accelerator that the correlation
engine offloads its per-step work to. A Device is a fixed pool of workers that
executes "launches": a grid of independent blocks, each block identified by an
integer id. Launches are synchronous from the caller's point of view: Launch
returns once every block has retired, which is also the ordering guarantee
dependent launches rely on.
*/
package device

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// BlockWidth is the number of strided partial sums used inside a block
// reduction. Summation order is fixed for a fixed width, so results are
// deterministic run to run. They are not bitwise-identical to results
// computed at a different width, only numerically close.
const BlockWidth = 64

// Device executes launches over a fixed pool of workers.
type Device struct {
	workers int
}

// New creates a Device backed by n workers. n = -1 means one worker per core.
func New(n int) *Device {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Device{ workers: n }
}

// Workers returns the number of workers backing the device.
func (d *Device) Workers() int { return d.workers }

// Launch runs kernel once for every block id in [0, grid). Blocks are
// independent: the kernel must not assume any execution order between ids.
// Launch returns after every block has completed, so work issued afterwards
// is ordered after all of the kernel's writes.
func (d *Device) Launch(grid int, kernel func(bid int)) {
	if grid <= 0 { return }

	workers := d.workers
	if workers > grid { workers = grid }

	next := int64(0)
	wg := sync.WaitGroup{ }
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				bid := int(atomic.AddInt64(&next, 1)) - 1
				if bid >= grid { return }
				kernel(bid)
			}
		}()
	}

	wg.Wait()
}

// SumPairs reduces the n-term sequence produced by term to a pair of scalar
// sums. It is the two-phase fold used inside a reduction block: each of the
// BlockWidth lanes accumulates a strided partial sum, then the lanes are
// combined pairwise down a binary tree. All arithmetic is float64.
func SumPairs(n int, term func(i int) (a, b float64)) (float64, float64) {
	pa := [BlockWidth]float64{ }
	pb := [BlockWidth]float64{ }

	for lane := 0; lane < BlockWidth; lane++ {
		for i := lane; i < n; i += BlockWidth {
			a, b := term(i)
			pa[lane] += a
			pb[lane] += b
		}
	}

	for stride := BlockWidth / 2; stride > 0; stride /= 2 {
		for lane := 0; lane < stride; lane++ {
			pa[lane] += pa[lane+stride]
			pb[lane] += pb[lane+stride]
		}
	}

	return pa[0], pb[0]
}
