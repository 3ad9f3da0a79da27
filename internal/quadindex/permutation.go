package quadindex

import (
	"github.com/aleksaelezovic/quadstore/internal/encoding"
)

// Component names a quad position
type Component uint8

const (
	Subject Component = iota
	Predicate
	Object
	Graph
)

func (c Component) String() string {
	switch c {
	case Subject:
		return "subject"
	case Predicate:
		return "predicate"
	case Object:
		return "object"
	case Graph:
		return "graph"
	default:
		return "unknown"
	}
}

// Permutation is a fixed component ordering with its own composite key
type Permutation struct {
	Name  string
	Order [4]Component
}

var (
	SPOG = Permutation{Name: "SPOG", Order: [4]Component{Subject, Predicate, Object, Graph}}
	GP   = Permutation{Name: "GP", Order: [4]Component{Graph, Predicate, Subject, Object}}
	OGS  = Permutation{Name: "OGS", Order: [4]Component{Object, Graph, Subject, Predicate}}
	POG  = Permutation{Name: "POG", Order: [4]Component{Predicate, Object, Graph, Subject}}
	GSP  = Permutation{Name: "GSP", Order: [4]Component{Graph, Subject, Predicate, Object}}
	OS   = Permutation{Name: "OS", Order: [4]Component{Object, Subject, Predicate, Graph}}
)

// Permutations lists every permutation in selection priority order.
//
//	SPOG  (?,?,?,?) (s,?,?,?) (s,p,?,?) (s,p,o,?) (s,p,o,g)
//	GP    (?,?,?,g) (?,p,?,g) (s,p,?,g)
//	OGS   (?,?,o,?) (?,?,o,g) (s,?,o,g)
//	POG   (?,p,?,?) (?,p,o,?) (?,p,o,g)
//	GSP   (s,?,?,g)
//	OS    (s,?,o,?)
var Permutations = []Permutation{SPOG, GP, OGS, POG, GSP, OS}

// Tuple reorders q into the permutation's component order
func (p Permutation) Tuple(q Quad) []int64 {
	tuple := make([]int64, len(p.Order))
	for i, c := range p.Order {
		tuple[i] = q.Component(c)
	}
	return tuple
}

// Key returns the encoded composite key of q under the permutation
func (p Permutation) Key(q Quad) []byte {
	return encoding.EncodeQuadKey(p.Tuple(q)...)
}

// boundPrefix returns how many leading components of the permutation are
// bound in pattern
func (p Permutation) boundPrefix(pattern Pattern) int {
	n := 0
	for _, c := range p.Order {
		if !pattern.Binding(c).Bound {
			break
		}
		n++
	}
	return n
}

// SelectPermutation returns the first permutation, in priority order, whose
// leading components are exactly the bound components of pattern. Falls
// back to SPOG.
func SelectPermutation(pattern Pattern) Permutation {
	bound := pattern.boundCount()
	if bound == 0 {
		return SPOG
	}
	for _, p := range Permutations {
		if p.boundPrefix(pattern) == bound {
			return p
		}
	}
	return SPOG
}

// Bounds returns the inclusive lower and upper composite tuples of pattern
// under p. Only the bound prefix narrows the range; bound components past
// the first unbound one are left to the caller's filter.
func Bounds(p Permutation, pattern Pattern) (lower, upper []int64) {
	prefix := p.boundPrefix(pattern)

	lower = make([]int64, len(p.Order))
	for i, c := range p.Order {
		lower[i] = encoding.Wildcard
		if i < prefix {
			lower[i] = pattern.Binding(c).OID
		}
	}

	switch {
	case prefix == 0:
		return lower, maxTuple()
	case prefix == len(p.Order):
		return lower, append([]int64{}, lower...)
	}

	last := lower[prefix-1]
	if last == encoding.MaxComponent {
		return lower, maxTuple()
	}
	upper = append([]int64{}, lower...)
	upper[prefix-1] = last + 1
	return lower, upper
}

func maxTuple() []int64 {
	return []int64{encoding.MaxComponent, encoding.MaxComponent, encoding.MaxComponent, encoding.MaxComponent}
}
