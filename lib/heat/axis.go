package heat

/* axis.go handles the transport direction and its mapping into the
per-particle virial tensor. */

import (
	"fmt"
)

// Axis is a spatial transport direction.
type Axis int
const (
	X Axis = iota
	Y
	Z
)

// ParseAxis converts a direction code from a config file into an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x": return X, nil
	case "y": return Y, nil
	case "z": return Z, nil
	}
	return 0, fmt.Errorf("The transport direction must be one of 'x', 'y', or 'z', but '%s' was given.", s)
}

func (a Axis) String() string {
	switch a {
	case X: return "x"
	case Y: return "y"
	case Z: return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// virialRow returns the flat-layout indices of the virial tensor row
// (W_ax, W_ay, W_az) selected by the transport direction a. The per-particle
// virial array stores nine dense component vectors in the fixed order
// [xx yy zz xy yz zx yx zy xz].
func (a Axis) virialRow() [3]int {
	switch a {
	case X: return [3]int{ 0, 3, 8 }
	case Y: return [3]int{ 6, 1, 4 }
	case Z: return [3]int{ 5, 7, 2 }
	}
	panic("'Impossible' transport direction.")
}
