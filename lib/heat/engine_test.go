package heat

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thermalab/shc/lib/device"
	"github.com/thermalab/shc/lib/eq"
	"github.com/thermalab/shc/lib/group"
)

func testConfig() Config {
	return Config{
		SampleInterval: 1, CorrelationSteps: 100, Direction: X,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct{
		change func(cfg *Config)
		valid  bool
	} {
		{func(cfg *Config) { }, true},
		{func(cfg *Config) { cfg.SampleInterval = 10 }, true},
		{func(cfg *Config) { cfg.SampleInterval = 0 }, false},
		{func(cfg *Config) { cfg.SampleInterval = 11 }, false},
		{func(cfg *Config) { cfg.SampleInterval = -1 }, false},
		{func(cfg *Config) { cfg.CorrelationSteps = 1000 }, true},
		{func(cfg *Config) { cfg.CorrelationSteps = 99 }, false},
		{func(cfg *Config) { cfg.CorrelationSteps = 1001 }, false},
		{func(cfg *Config) { cfg.Direction = Z }, true},
		{func(cfg *Config) { cfg.Direction = Axis(7) }, false},
		{func(cfg *Config) { cfg.Direction = Axis(-1) }, false},
	}

	for i := range tests {
		cfg := testConfig()
		tests[i].change(&cfg)

		err := cfg.Validate()
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected %+v to validate, but got: %s",
				i, cfg, err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected %+v to be rejected, but it wasn't.", i, cfg)
		}
	}
}

// constantArrays returns velocity and virial arrays for an n-particle system
// where every particle has velocity (1, 0, 0) and virial row x equal to
// (1, 0, 0): only the xx component is set.
func constantArrays(n int) (velocity, virial []float64) {
	velocity = make([]float64, 3*n)
	virial = make([]float64, 9*n)
	for i := 0; i < n; i++ {
		velocity[i] = 1 // vx
		virial[i] = 1   // xx
	}
	return velocity, virial
}

func TestBoundaryBeforeSaturation(t *testing.T) {
	engine, err := New(testConfig(), group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity, virial := constantArrays(2)

	// One sample short of filling the buffer: no time origin may have
	// contributed yet.
	for step := 0; step < 99; step++ {
		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	if engine.TimeOrigins() != 0 {
		t.Errorf("Expected 0 time origins before the buffer fills, got %d.",
			engine.TimeOrigins())
	}
	if _, _, _, _, err := engine.Averages(); err == nil {
		t.Errorf("Expected Averages to fail before the buffer fills, but it didn't.")
	}

	// The filling sample flips the engine over.
	if err := engine.Process(99, velocity, virial); err != nil {
		t.Fatalf("Step 99 failed: %s", err.Error())
	}
	if engine.TimeOrigins() != 1 {
		t.Errorf("Expected 1 time origin after the buffer fills, got %d.",
			engine.TimeOrigins())
	}
}

func TestConstantSignal(t *testing.T) {
	engine, err := New(testConfig(), group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity, virial := constantArrays(2)
	for step := 0; step < 150; step++ {
		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	if engine.TimeOrigins() != 51 {
		t.Fatalf("Expected 51 time origins after 150 samples, got %d.",
			engine.TimeOrigins())
	}

	kiNeg, koNeg, kiPos, koPos, err := engine.Averages()
	if err != nil {
		t.Fatalf("Averages failed: %s", err.Error())
	}

	// Correlating constants with themselves is lag-invariant: both in-plane
	// averages are sum_i sx_i*vx_i = 2 at every lag, and both out-of-plane
	// averages are exactly zero since every z component is zero.
	want := make([]float64, 100)
	for i := range want {
		want[i] = 2
	}

	if !eq.FloatsEps(kiNeg, want, 1e-12) {
		t.Errorf("Expected every negative in-plane average to be 2, got %v.",
			kiNeg[:5])
	}
	if !eq.FloatsEps(kiPos, want, 1e-12) {
		t.Errorf("Expected every positive in-plane average to be 2, got %v.",
			kiPos[:5])
	}
	if !eq.Zeros(koNeg) {
		t.Errorf("Expected the negative out-of-plane averages to be exactly zero, got %v.",
			koNeg[:5])
	}
	if !eq.Zeros(koPos) {
		t.Errorf("Expected the positive out-of-plane averages to be exactly zero, got %v.",
			koPos[:5])
	}
}

// TestSubsetIsolation poisons every particle outside the tracked subset with
// NaN. Any read outside the subset's index list would contaminate the
// accumulators, since NaN survives every sum it enters.
func TestSubsetIsolation(t *testing.T) {
	n := 10
	index := []int{ 1, 4, 7 }

	engine, err := New(testConfig(), group.Subset(index), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity := make([]float64, 3*n)
	virial := make([]float64, 9*n)
	for i := range velocity {
		velocity[i] = math.NaN()
	}
	for i := range virial {
		virial[i] = math.NaN()
	}
	for _, p := range index {
		velocity[p], velocity[n+p], velocity[2*n+p] = 1, 0, 0
		for comp := 0; comp < 9; comp++ {
			virial[comp*n+p] = 0
		}
		virial[p] = 1 // xx
	}

	for step := 0; step < 120; step++ {
		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	kiNeg, koNeg, kiPos, koPos, err := engine.Averages()
	if err != nil {
		t.Fatalf("Averages failed: %s", err.Error())
	}

	want := make([]float64, 100)
	for i := range want {
		want[i] = 3
	}

	if !eq.FloatsEps(kiNeg, want, 1e-12) || !eq.FloatsEps(kiPos, want, 1e-12) {
		t.Errorf("Untracked particles leaked into the in-plane averages: %v.",
			kiNeg[:5])
	}
	if !eq.Zeros(koNeg) || !eq.Zeros(koPos) {
		t.Errorf("Untracked particles leaked into the out-of-plane averages: %v.",
			koNeg[:5])
	}
}

// TestAgainstReference runs a varying synthetic trajectory through the engine
// and checks every accumulator against a brute-force correlator that keeps
// the full sample history. This exercises the lag mapping, the wrap-around
// page reuse, the virial row selection, and the superposition of time
// origins all at once.
func TestAgainstReference(t *testing.T) {
	n, nc := 5, 100
	index := []int{ 0, 2, 4 }
	g := len(index)

	cfg := Config{ SampleInterval: 2, CorrelationSteps: nc, Direction: Y }
	engine, err := New(cfg, group.Subset(index), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	// Every velocity axis and every virial component gets its own signal, so
	// a transposed lag, a wrong page, or a wrong tensor row all show up as
	// mismatches.
	velocitySignal := func(m, axis, p int) float64 {
		return math.Sin(0.1*float64(m)*float64(axis+1) + float64(p))
	}
	virialSignal := func(m, comp, p int) float64 {
		return math.Cos(0.05*float64(m)*float64(comp+1) - float64(p))
	}

	samples := 200
	// Gathered per-sample history for the reference correlator. Direction y
	// selects the tensor row (yx, yy, yz) = flat components (6, 1, 4).
	row := [3]int{ 6, 1, 4 }
	sx := make([][]float64, samples)
	sy := make([][]float64, samples)
	sz := make([][]float64, samples)
	vx := make([][]float64, samples)
	vy := make([][]float64, samples)
	vz := make([][]float64, samples)

	velocity := make([]float64, 3*n)
	virial := make([]float64, 9*n)

	m := 0
	for step := 0; step < samples*cfg.SampleInterval; step++ {
		if (step+1)%cfg.SampleInterval != 0 {
			if err := engine.Process(step, velocity, virial); err != nil {
				t.Fatalf("Step %d failed: %s", step, err.Error())
			}
			continue
		}

		for p := 0; p < n; p++ {
			for axis := 0; axis < 3; axis++ {
				velocity[axis*n+p] = velocitySignal(m, axis, p)
			}
			for comp := 0; comp < 9; comp++ {
				virial[comp*n+p] = virialSignal(m, comp, p)
			}
		}

		sx[m] = make([]float64, g)
		sy[m] = make([]float64, g)
		sz[m] = make([]float64, g)
		vx[m] = make([]float64, g)
		vy[m] = make([]float64, g)
		vz[m] = make([]float64, g)
		for i, p := range index {
			sx[m][i] = virialSignal(m, row[0], p)
			sy[m][i] = virialSignal(m, row[1], p)
			sz[m][i] = virialSignal(m, row[2], p)
			vx[m][i] = velocitySignal(m, 0, p)
			vy[m][i] = velocitySignal(m, 1, p)
			vz[m][i] = velocitySignal(m, 2, p)
		}
		m++

		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	origins := samples - nc + 1
	if engine.TimeOrigins() != origins {
		t.Fatalf("Expected %d time origins, got %d.",
			origins, engine.TimeOrigins())
	}

	// Brute-force reference: the page at physical lag L when sample m is
	// current holds sample m-L, so each origin contributes flux[m]·vel[m-L]
	// to the negative pair and vel[m]·flux[m-L] to the positive pair.
	kiNegRef := make([]float64, nc)
	koNegRef := make([]float64, nc)
	kiPosRef := make([]float64, nc)
	koPosRef := make([]float64, nc)
	for m := nc - 1; m < samples; m++ {
		for lag := 0; lag < nc; lag++ {
			for i := 0; i < g; i++ {
				kiNegRef[lag] += sx[m][i]*vx[m-lag][i] + sy[m][i]*vy[m-lag][i]
				koNegRef[lag] += sz[m][i] * vz[m-lag][i]
				kiPosRef[lag] += vx[m][i]*sx[m-lag][i] + vy[m][i]*sy[m-lag][i]
				koPosRef[lag] += vz[m][i] * sz[m-lag][i]
			}
		}
	}
	w := 1 / float64(origins)
	for lag := 0; lag < nc; lag++ {
		kiNegRef[lag] *= w
		koNegRef[lag] *= w
		kiPosRef[lag] *= w
		koPosRef[lag] *= w
	}

	kiNeg, koNeg, kiPos, koPos, err := engine.Averages()
	if err != nil {
		t.Fatalf("Averages failed: %s", err.Error())
	}

	eps := 1e-10
	if !eq.FloatsEps(kiNeg, kiNegRef, eps) {
		t.Errorf("Negative in-plane averages disagree with the reference: got %v, expected %v.",
			kiNeg[:3], kiNegRef[:3])
	}
	if !eq.FloatsEps(koNeg, koNegRef, eps) {
		t.Errorf("Negative out-of-plane averages disagree with the reference: got %v, expected %v.",
			koNeg[:3], koNegRef[:3])
	}
	if !eq.FloatsEps(kiPos, kiPosRef, eps) {
		t.Errorf("Positive in-plane averages disagree with the reference: got %v, expected %v.",
			kiPos[:3], kiPosRef[:3])
	}
	if !eq.FloatsEps(koPos, koPosRef, eps) {
		t.Errorf("Positive out-of-plane averages disagree with the reference: got %v, expected %v.",
			koPos[:3], koPosRef[:3])
	}
}

func TestAveragesIdempotent(t *testing.T) {
	engine, err := New(testConfig(), group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity, virial := constantArrays(2)
	for step := 0; step < 120; step++ {
		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	ki1, ko1, _, _, err := engine.Averages()
	if err != nil {
		t.Fatalf("First Averages failed: %s", err.Error())
	}
	ki2, ko2, _, _, err := engine.Averages()
	if err != nil {
		t.Fatalf("Second Averages failed: %s", err.Error())
	}

	if !eq.Slices(ki1, ki2) || !eq.Slices(ko1, ko2) {
		t.Errorf("Two Averages calls without intervening steps disagree.")
	}

	buf1, buf2 := &bytes.Buffer{ }, &bytes.Buffer{ }
	if err := engine.WriteTo(buf1); err != nil {
		t.Fatalf("First WriteTo failed: %s", err.Error())
	}
	if err := engine.WriteTo(buf2); err != nil {
		t.Fatalf("Second WriteTo failed: %s", err.Error())
	}
	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Errorf("Two WriteTo calls without intervening steps disagree.")
	}
}

func TestSampleIntervalGating(t *testing.T) {
	// Steps off the sampling interval carry NaN arrays: if the engine ever
	// samples one, the accumulators are contaminated.
	cfg := testConfig()
	cfg.SampleInterval = 5

	engine, err := New(cfg, group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity, virial := constantArrays(2)
	poisonedVelocity := make([]float64, len(velocity))
	poisonedVirial := make([]float64, len(virial))
	for i := range poisonedVelocity {
		poisonedVelocity[i] = math.NaN()
	}
	for i := range poisonedVirial {
		poisonedVirial[i] = math.NaN()
	}

	for step := 0; step < 995; step++ {
		v, s := poisonedVelocity, poisonedVirial
		if (step+1)%5 == 0 {
			v, s = velocity, virial
		}
		if err := engine.Process(step, v, s); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	// 199 samples -> 100 time origins.
	if engine.TimeOrigins() != 100 {
		t.Fatalf("Expected 100 time origins, got %d.", engine.TimeOrigins())
	}

	kiNeg, _, _, koPos, err := engine.Averages()
	if err != nil {
		t.Fatalf("Averages failed: %s", err.Error())
	}

	want := make([]float64, 100)
	for i := range want {
		want[i] = 2
	}
	if !eq.FloatsEps(kiNeg, want, 1e-12) {
		t.Errorf("Off-interval steps leaked into the accumulators: %v.",
			kiNeg[:5])
	}
	if !eq.Zeros(koPos) {
		t.Errorf("Off-interval steps leaked into the out-of-plane accumulators: %v.",
			koPos[:5])
	}
}

func TestProcessRejectsBadArrays(t *testing.T) {
	engine, err := New(testConfig(), group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	tests := []struct{
		nVelocity, nVirial int
	} {
		{7, 18},
		{6, 17},
		{6, 19},
		{6, 0},
	}

	for i := range tests {
		velocity := make([]float64, tests[i].nVelocity)
		virial := make([]float64, tests[i].nVirial)
		if err := engine.Process(0, velocity, virial); err == nil {
			t.Errorf("%d) Expected arrays of length (%d, %d) to be rejected, but they weren't.",
				i, tests[i].nVelocity, tests[i].nVirial)
		}
	}
}

func TestFinalize(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "shc.out")

	cfg := testConfig()
	cfg.Output = out

	engine, err := New(cfg, group.All(2), device.New(4))
	if err != nil {
		t.Fatalf("Could not create engine: %s", err.Error())
	}

	velocity, virial := constantArrays(2)
	for step := 0; step < 120; step++ {
		if err := engine.Process(step, velocity, virial); err != nil {
			t.Fatalf("Step %d failed: %s", step, err.Error())
		}
	}

	if err := engine.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %s", err.Error())
	}

	text, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Could not read the output file: %s", err.Error())
	}

	lines := strings.Split(strings.TrimRight(string(text), "\n"), "\n")
	if len(lines) != 100 {
		t.Fatalf("Expected 100 output lines, one per lag, got %d.", len(lines))
	}
	for i := range lines {
		if n := len(strings.Fields(lines[i])); n != 4 {
			t.Errorf("Line %d has %d fields, expected 4.", i, n)
		}
	}

	// The engine is inert now: further steps are no-ops and a second
	// finalization is an error.
	origins := engine.TimeOrigins()
	if err := engine.Process(120, velocity, virial); err != nil {
		t.Errorf("A post-finalization step failed instead of no-oping: %s",
			err.Error())
	}
	if engine.TimeOrigins() != origins {
		t.Errorf("A post-finalization step changed the time-origin counter.")
	}
	if err := engine.Finalize(); err == nil {
		t.Errorf("Expected a second Finalize to fail, but it didn't.")
	}
}
