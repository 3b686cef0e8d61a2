/*package group implements the Tracked-Particle Set: the ordered subset of
particles the correlation engine measures. A Source is selected once at setup
and dispatched uniformly on the hot path, so the engine never branches on the
all-particles/subset distinction per step.*/
package group

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Source maps tracked-particle slots onto the full per-particle arrays the
// simulation hands the engine each step.
type Source interface {
	// Size returns the number of tracked particles.
	Size() int
	// Gather copies the tracked particles' values out of the full-system
	// array src into dst, which must have length Size(). Elements are
	// independent, so Gather may be called for different channels
	// concurrently.
	Gather(dst, src []float64)
}

// Type assertions
var (
	_ Source = &Identity{ }
	_ Source = &Indexed{ }
)

// Identity is the degenerate all-particles Source: tracked order equals
// global order, so Gather is a direct bulk copy with no indirection.
type Identity struct {
	n int
}

// All returns the Source tracking all n particles of the system.
func All(n int) *Identity { return &Identity{ n } }

func (s *Identity) Size() int { return s.n }

func (s *Identity) Gather(dst, src []float64) {
	copy(dst, src[:s.n])
}

// Indexed is a named-subset Source: tracked slot n reads from global index
// index[n].
type Indexed struct {
	index []int
}

// Subset returns the Source tracking the particles listed in index, in that
// order. The list is not copied; it must not be mutated afterwards.
func Subset(index []int) *Indexed { return &Indexed{ index } }

func (s *Indexed) Size() int { return len(s.index) }

func (s *Indexed) Gather(dst, src []float64) {
	for n, i := range s.index {
		dst[n] = src[i]
	}
}

// Index returns the subset's ordered global index list.
func (s *Indexed) Index() []int { return s.index }

// Registry holds the named particle groups defined for a run. Group ids are
// assigned in definition order.
type Registry struct {
	groups [][]int
}

// LoadRegistry parses a group file: one group per line, each line a
// space-separated list of global particle indices. Indices must lie in
// [0, nTotal). Blank lines and lines starting with '#' are skipped.
func LoadRegistry(rd io.Reader, nTotal int) (*Registry, error) {
	reg := &Registry{ }

	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") { continue }

		fields := strings.Fields(text)
		index := make([]int, len(fields))
		for i, field := range fields {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("Line %d of the group file contains '%s', which is not an integer particle index.", line, field)
			}
			if n < 0 || n >= nTotal {
				return nil, fmt.Errorf("Line %d of the group file contains index %d, but the system only has %d particles.", line, n, nTotal)
			}
			index[i] = n
		}

		reg.groups = append(reg.groups, index)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return reg, nil
}

// Groups returns the number of groups in the registry.
func (reg *Registry) Groups() int { return len(reg.groups) }

// Size returns the number of particles in group id.
func (reg *Registry) Size(id int) (int, error) {
	if id < 0 || id >= len(reg.groups) {
		return 0, fmt.Errorf("Group %d was requested, but the group file only defines %d groups.", id, len(reg.groups))
	}
	return len(reg.groups[id]), nil
}

// Source returns the Indexed Source for group id.
func (reg *Registry) Source(id int) (Source, error) {
	if id < 0 || id >= len(reg.groups) {
		return nil, fmt.Errorf("Group %d was requested, but the group file only defines %d groups.", id, len(reg.groups))
	}
	return Subset(reg.groups[id]), nil
}
