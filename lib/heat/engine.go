/*package heat implements the spectral heat current engine: an on-the-fly
correlator that decomposes the heat flux of a running MD simulation into
per-lag contributions. Every sampling step the engine gathers the tracked
particles' velocity and direction-selected virial components into a circular
buffer, and once the buffer has filled it correlates the newest sample against
the whole buffer, superposing one time origin per step onto four running
accumulators. At finalization the accumulators are averaged over time origins
and written out, one line per lag.*/
package heat

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/thermalab/shc/lib/device"
	"github.com/thermalab/shc/lib/group"
	"github.com/thermalab/shc/lib/ring"
)

const (
	// MinSampleInterval and MaxSampleInterval bound the number of MD steps
	// between recorded samples.
	MinSampleInterval = 1
	MaxSampleInterval = 10
	// MinCorrelationSteps and MaxCorrelationSteps bound the number of
	// correlation lags, i.e. the depth of the sample ring.
	MinCorrelationSteps = 100
	MaxCorrelationSteps = 1000
)

// Config holds the engine parameters that are fixed at setup.
type Config struct {
	// SampleInterval is the number of MD steps between recorded samples.
	SampleInterval int
	// CorrelationSteps is the number of correlation lags, Nc.
	CorrelationSteps int
	// Direction is the transport direction the heat flux is resolved along.
	Direction Axis
	// Output is the file the averaged correlations are appended to at
	// finalization. It may be empty if the caller writes results itself.
	Output string
}

// Validate returns an error describing the first illegal parameter, or nil.
// It is called by New before any buffer is allocated.
func (cfg *Config) Validate() error {
	if cfg.SampleInterval < MinSampleInterval ||
		cfg.SampleInterval > MaxSampleInterval {
		return fmt.Errorf("The sampling interval must be in [%d, %d], but %d was given.",
			MinSampleInterval, MaxSampleInterval, cfg.SampleInterval)
	}
	if cfg.CorrelationSteps < MinCorrelationSteps ||
		cfg.CorrelationSteps > MaxCorrelationSteps {
		return fmt.Errorf("The number of correlation steps must be in [%d, %d], but %d was given.",
			MinCorrelationSteps, MaxCorrelationSteps, cfg.CorrelationSteps)
	}
	if cfg.Direction != X && cfg.Direction != Y && cfg.Direction != Z {
		return fmt.Errorf("The transport direction must be one of 'x', 'y', or 'z'.")
	}
	return nil
}

// Engine is one spectral heat current correlator. All of its state (the
// sample ring, the four accumulators, and the time-origin counter) is owned
// exclusively by the instance; nothing else reads or writes it.
type Engine struct {
	cfg Config
	src group.Source
	dev *device.Device

	ring *ring.Ring

	// Running sums over time origins, one element per lag. The
	// negative pair comes from the flux(now)·velocity(buffer) pass and the
	// positive pair from the velocity(now)·flux(buffer) pass; "i" is the
	// in-plane (x,y) part and "o" the out-of-plane (z) part.
	kiNegative, koNegative []float64
	kiPositive, koPositive []float64

	numTimeOrigins int

	out    *os.File
	active bool
}

// New creates an Engine measuring the particles of src, resolving the heat
// flux along cfg.Direction, offloading per-step work to dev. The
// configuration is validated and the output file opened before any buffer is
// allocated, so a failed New leaves nothing partially constructed.
func New(cfg Config, src group.Source, dev *device.Device) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src.Size() < 1 {
		return nil, fmt.Errorf("The tracked-particle set is empty.")
	}

	var out *os.File
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("Could not open the output file '%s': %s",
				cfg.Output, err.Error())
		}
		out = f
	}

	nc := cfg.CorrelationSteps
	r, err := ring.New(nc, src.Size())
	if err != nil {
		if out != nil { out.Close() }
		return nil, err
	}

	return &Engine{
		cfg: cfg, src: src, dev: dev, ring: r,
		kiNegative: make([]float64, nc), koNegative: make([]float64, nc),
		kiPositive: make([]float64, nc), koPositive: make([]float64, nc),
		out: out, active: true,
	}, nil
}

// Config returns the engine's resolved configuration.
func (e *Engine) Config() Config { return e.cfg }

// GroupSize returns the number of tracked particles.
func (e *Engine) GroupSize() int { return e.src.Size() }

// TimeOrigins returns the number of time origins that have contributed to the
// accumulators so far.
func (e *Engine) TimeOrigins() int { return e.numTimeOrigins }

// Process hands the engine one MD step. velocity is the full-system velocity
// array (3N values, axis-major: all vx, then all vy, then all vz) and virial
// the full-system per-particle virial (9N values, component-major in the
// order [xx yy zz xy yz zx yx zy xz]). Steps that don't fall on the sampling
// interval, and all steps after finalization, are no-ops.
func (e *Engine) Process(step int, velocity, virial []float64) error {
	if !e.active { return nil }
	if (step+1)%e.cfg.SampleInterval != 0 { return nil }

	if len(velocity)%3 != 0 {
		return fmt.Errorf("The velocity array has length %d, which is not divisible by 3.", len(velocity))
	}
	n := len(velocity) / 3
	if len(virial) != 9*n {
		return fmt.Errorf("The system has %d particles, so the virial array must have length %d, but it has length %d.",
			n, 9*n, len(virial))
	}

	page, c := e.ring.Advance()
	e.gather(page, n, velocity, virial)

	if !e.ring.Saturated() { return nil }

	e.reduce(page, c)
	e.numTimeOrigins++
	return nil
}

// gather writes the tracked particles' six sample channels into the ring page
// claimed for this step. It runs as one device launch with a block per
// channel; within a block the Source either bulk-copies (all particles) or
// gathers through its index list (named subset).
func (e *Engine) gather(page ring.Page, n int, velocity, virial []float64) {
	row := e.cfg.Direction.virialRow()

	dst := [6][]float64{ page.Sx, page.Sy, page.Sz, page.Vx, page.Vy, page.Vz }
	src := [6][]float64{
		virial[row[0]*n : (row[0]+1)*n],
		virial[row[1]*n : (row[1]+1)*n],
		virial[row[2]*n : (row[2]+1)*n],
		velocity[0*n : 1*n],
		velocity[1*n : 2*n],
		velocity[2*n : 3*n],
	}

	e.dev.Launch(6, func(bid int) {
		e.src.Gather(dst[bid], src[bid])
	})
}

// reduce correlates the newly written page against the entire ring and
// superposes one time origin onto the four accumulators. Each launch runs Nc
// blocks; block bid reduces over all tracked particles and adds its pair into
// the accumulator slot at the physical lag ring.LagIndex(c, bid, Nc). That
// mapping is a bijection on block ids for fixed c, so no two blocks of a
// launch write the same slot, and the launch barrier orders the writes before
// the next step's reads.
func (e *Engine) reduce(now ring.Page, c int) {
	nc := e.ring.Nc
	g := e.ring.GroupSize

	// Flux-led pass: "now" flux against buffered velocities.
	e.dev.Launch(nc, func(bid int) {
		past := e.ring.Page(bid)
		ki, ko := device.SumPairs(g, func(i int) (float64, float64) {
			return now.Sx[i]*past.Vx[i] + now.Sy[i]*past.Vy[i],
				now.Sz[i] * past.Vz[i]
		})
		lag := ring.LagIndex(c, bid, nc)
		e.kiNegative[lag] += ki
		e.koNegative[lag] += ko
	})

	// Velocity-led pass: "now" velocity against buffered fluxes.
	e.dev.Launch(nc, func(bid int) {
		past := e.ring.Page(bid)
		ki, ko := device.SumPairs(g, func(i int) (float64, float64) {
			return now.Vx[i]*past.Sx[i] + now.Vy[i]*past.Sy[i],
				now.Vz[i] * past.Sz[i]
		})
		lag := ring.LagIndex(c, bid, nc)
		e.kiPositive[lag] += ki
		e.koPositive[lag] += ko
	})
}

// Averages returns the four accumulators divided element-wise by the number
// of contributing time origins: in-plane and out-of-plane for the
// flux-led (negative) and velocity-led (positive) passes. It is a pure
// function of the stored accumulators, so calling it repeatedly without
// further steps returns identical results.
func (e *Engine) Averages() (kiNeg, koNeg, kiPos, koPos []float64, err error) {
	if e.numTimeOrigins == 0 {
		return nil, nil, nil, nil, fmt.Errorf(
			"No time origins have been accumulated: the run was shorter than %d samples.",
			e.ring.Nc)
	}

	nc := e.ring.Nc
	w := 1 / float64(e.numTimeOrigins)
	kiNeg = floats.ScaleTo(make([]float64, nc), w, e.kiNegative)
	koNeg = floats.ScaleTo(make([]float64, nc), w, e.koNegative)
	kiPos = floats.ScaleTo(make([]float64, nc), w, e.kiPositive)
	koPos = floats.ScaleTo(make([]float64, nc), w, e.koPositive)
	return kiNeg, koNeg, kiPos, koPos, nil
}

// WriteTo writes the averaged correlations to w: one line per lag with four
// space-separated fields, in the order negative in-plane, negative
// out-of-plane, positive in-plane, positive out-of-plane.
func (e *Engine) WriteTo(w io.Writer) error {
	kiNeg, koNeg, kiPos, koPos, err := e.Averages()
	if err != nil { return err }

	for nc := 0; nc < e.ring.Nc; nc++ {
		_, err := fmt.Fprintf(w, "%25.15f %25.15f %25.15f %25.15f\n",
			kiNeg[nc], koNeg[nc], kiPos[nc], koPos[nc])
		if err != nil { return err }
	}
	return nil
}

// Finalize writes the averaged correlations to the engine's output file,
// closes it, and marks the engine inert: all later Process calls are no-ops.
// Engines created without an output file just become inert.
func (e *Engine) Finalize() error {
	if !e.active {
		return fmt.Errorf("The engine has already been finalized.")
	}
	e.active = false

	if e.out == nil { return nil }
	defer e.out.Close()

	if err := e.WriteTo(e.out); err != nil {
		return err
	}
	return e.out.Sync()
}
