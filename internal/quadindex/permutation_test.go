package quadindex

import (
	"testing"

	"github.com/aleksaelezovic/quadstore/internal/encoding"
	"github.com/stretchr/testify/assert"
)

func patternOf(s, p, o, g bool) Pattern {
	var pattern Pattern
	if s {
		pattern.Subject = Bind(1)
	}
	if p {
		pattern.Predicate = Bind(2)
	}
	if o {
		pattern.Object = Bind(3)
	}
	if g {
		pattern.Graph = Bind(4)
	}
	return pattern
}

func TestSelectPermutation(t *testing.T) {
	tests := []struct {
		s, p, o, g bool
		expected   Permutation
	}{
		{false, false, false, false, SPOG},
		{true, false, false, false, SPOG},
		{false, true, false, false, POG},
		{false, false, true, false, OGS},
		{false, false, false, true, GP},
		{true, true, false, false, SPOG},
		{true, false, true, false, OS},
		{true, false, false, true, GSP},
		{false, true, true, false, POG},
		{false, true, false, true, GP},
		{false, false, true, true, OGS},
		{true, true, true, false, SPOG},
		{true, true, false, true, GP},
		{true, false, true, true, OGS},
		{false, true, true, true, POG},
		{true, true, true, true, SPOG},
	}

	for _, tt := range tests {
		pattern := patternOf(tt.s, tt.p, tt.o, tt.g)
		got := SelectPermutation(pattern)
		assert.Equal(t, tt.expected.Name, got.Name, "s=%v p=%v o=%v g=%v", tt.s, tt.p, tt.o, tt.g)

		// every bound set is covered by a leading prefix
		assert.Equal(t, pattern.boundCount(), got.boundPrefix(pattern))

		// selection only depends on which components are bound
		other := pattern
		if other.Subject.Bound {
			other.Subject = Bind(99)
		}
		assert.Equal(t, got.Name, SelectPermutation(other).Name)
	}
}

func TestBounds(t *testing.T) {
	w := encoding.Wildcard
	m := encoding.MaxComponent

	tests := []struct {
		name         string
		perm         Permutation
		pattern      Pattern
		lower, upper []int64
	}{
		{
			name:    "unbound",
			perm:    SPOG,
			pattern: Pattern{},
			lower:   []int64{w, w, w, w},
			upper:   []int64{m, m, m, m},
		},
		{
			name:    "subject",
			perm:    SPOG,
			pattern: Pattern{Subject: Bind(9)},
			lower:   []int64{9, w, w, w},
			upper:   []int64{10, w, w, w},
		},
		{
			name:    "graph and predicate",
			perm:    GP,
			pattern: Pattern{Graph: Bind(0), Predicate: Bind(5)},
			lower:   []int64{0, 5, w, w},
			upper:   []int64{0, 6, w, w},
		},
		{
			name:    "three bound",
			perm:    OGS,
			pattern: Pattern{Object: Bind(3), Graph: Bind(4), Subject: Bind(1)},
			lower:   []int64{3, 4, 1, w},
			upper:   []int64{3, 4, 2, w},
		},
		{
			name:    "fully bound",
			perm:    SPOG,
			pattern: Pattern{Subject: Bind(1), Predicate: Bind(2), Object: Bind(3), Graph: Bind(4)},
			lower:   []int64{1, 2, 3, 4},
			upper:   []int64{1, 2, 3, 4},
		},
		{
			name:    "increment overflow",
			perm:    SPOG,
			pattern: Pattern{Subject: Bind(m)},
			lower:   []int64{m, w, w, w},
			upper:   []int64{m, m, m, m},
		},
		{
			name:    "bound past the prefix is not used",
			perm:    SPOG,
			pattern: Pattern{Predicate: Bind(2)},
			lower:   []int64{w, w, w, w},
			upper:   []int64{m, m, m, m},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := Bounds(tt.perm, tt.pattern)
			assert.Equal(t, tt.lower, lower)
			assert.Equal(t, tt.upper, upper)
			assert.LessOrEqual(t, encoding.CompareTuples(lower, upper), 0)
		})
	}
}

func TestPermutation_Tuple(t *testing.T) {
	q := Quad{Subject: 1, Predicate: 2, Object: 3, Graph: 4}

	expected := map[string][]int64{
		"SPOG": {1, 2, 3, 4},
		"GP":   {4, 2, 1, 3},
		"OGS":  {3, 4, 1, 2},
		"POG":  {2, 3, 4, 1},
		"GSP":  {4, 1, 2, 3},
		"OS":   {3, 1, 2, 4},
	}
	for _, p := range Permutations {
		assert.Equal(t, expected[p.Name], p.Tuple(q), p.Name)
		assert.Equal(t, encoding.EncodeQuadKey(expected[p.Name]...), p.Key(q), p.Name)
	}
}

func TestPattern_Matches(t *testing.T) {
	q := Quad{Subject: 1, Predicate: 2, Object: 3, Graph: 0}

	assert.True(t, Pattern{}.Matches(q))
	assert.True(t, PatternOf(q).Matches(q))
	assert.True(t, Pattern{Graph: Bind(0)}.Matches(q))
	assert.False(t, Pattern{Graph: Bind(1)}.Matches(q))
	assert.False(t, Pattern{Subject: Bind(1), Object: Bind(4)}.Matches(q))
}
