/*package ring implements the fixed-capacity circular store that holds the
sliding window of per-particle flux and velocity samples. The buffer has one
page per correlation lag (depth Nc) and one column per tracked particle, and
is addressed through a monotonically increasing absolute sample counter
reduced modulo Nc. All of the modular arithmetic, including the lag mapping
that converts a buffer page id into a physical lag, lives here so it can be
tested in isolation.
*/
package ring

import (
	"fmt"
)

// Page is one slot's worth of the six sample channels: the three
// direction-selected flux components and the three velocity components of
// every tracked particle. The slices alias the ring's backing arrays.
type Page struct {
	Sx, Sy, Sz []float64
	Vx, Vy, Vz []float64
}

// Ring is the circular sample store. The six channels are dense parallel
// arrays of length Nc*GroupSize, logically [page][particle]. Pages are only
// ever overwritten in place; the backing arrays are never resized.
type Ring struct {
	Nc        int
	GroupSize int

	sx, sy, sz []float64
	vx, vy, vz []float64

	samples int
}

// New creates a Ring with nc pages of groupSize particles each.
func New(nc, groupSize int) (*Ring, error) {
	if nc < 1 {
		return nil, fmt.Errorf("A ring buffer needs at least one page, but nc = %d was requested.", nc)
	}
	if groupSize < 1 {
		return nil, fmt.Errorf("A ring buffer needs at least one tracked particle, but groupSize = %d was requested.", groupSize)
	}

	n := nc * groupSize
	return &Ring{
		Nc: nc, GroupSize: groupSize,
		sx: make([]float64, n), sy: make([]float64, n), sz: make([]float64, n),
		vx: make([]float64, n), vy: make([]float64, n), vz: make([]float64, n),
	}, nil
}

// Samples returns the total number of samples written so far.
func (r *Ring) Samples() int { return r.samples }

// Saturated returns true once every page has been written at least once.
func (r *Ring) Saturated() bool { return r.samples >= r.Nc }

// Slot returns the page index that holds (or will hold) the sample with the
// given absolute index.
func (r *Ring) Slot(sample int) int { return sample % r.Nc }

// Page returns the six channel slices of page k. The slices alias the ring's
// storage, so writes through them update the ring.
func (r *Ring) Page(k int) Page {
	lo, hi := k*r.GroupSize, (k+1)*r.GroupSize
	return Page{
		Sx: r.sx[lo:hi], Sy: r.sy[lo:hi], Sz: r.sz[lo:hi],
		Vx: r.vx[lo:hi], Vy: r.vy[lo:hi], Vz: r.vz[lo:hi],
	}
}

// Advance claims the page for the next sample and bumps the sample counter.
// The returned page must be fully overwritten by the caller. The second
// return value is the correlation step of the sample, i.e. its page index.
func (r *Ring) Advance() (Page, int) {
	slot := r.Slot(r.samples)
	r.samples++
	return r.Page(slot), slot
}

// LagIndex maps a buffer page id to the physical lag it represents relative
// to the current correlation step c. Pages at or before c in buffer order are
// samples from the current fill cycle (lag c-bid); pages after c were written
// during the previous cycle and fold around to lag c+Nc-bid. For fixed c the
// mapping is a bijection on [0, Nc), so every page targets a distinct lag.
func LagIndex(c, bid, nc int) int {
	if bid <= c {
		return c - bid
	}
	return c + nc - bid
}
