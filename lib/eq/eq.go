/*package eq is a simple package for telling whether two arrays are equal to
one another. It exists so tests don't need to hand-roll comparison loops.*/
package eq

import (
	"golang.org/x/exp/constraints"
)

// Slices returns true if two arrays have the same values and false otherwise.
func Slices[T comparable](x, y []T) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// FloatsEps returns true if the two float arrays are within eps of one
// another and false otherwise.
func FloatsEps[T constraints.Float](x, y []T, eps T) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] + eps < y[i] || x[i] - eps > y[i] {
			return false
		}
	}
	return true
}

// Zeros returns true if every element of x is exactly zero.
func Zeros[T constraints.Float | constraints.Integer](x []T) bool {
	for i := range x {
		if x[i] != 0 { return false }
	}
	return true
}
