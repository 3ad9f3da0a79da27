package quadindex

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/aleksaelezovic/quadstore/internal/docstore"
	"github.com/aleksaelezovic/quadstore/internal/metrics"
	"github.com/aleksaelezovic/quadstore/internal/storage"
	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]store.Storage {
	badgerStorage, err := storage.NewInMemoryBadgerStorage()
	require.NoError(t, err)
	t.Cleanup(func() { badgerStorage.Close() })

	boltStorage, err := storage.NewBoltStorage(filepath.Join(t.TempDir(), "quads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { boltStorage.Close() })

	return map[string]store.Storage{"badger": badgerStorage, "bolt": boltStorage}
}

func newIndex(t *testing.T, s store.Storage, cfg Config) *Index {
	logger, _ := test.NewNullLogger()
	cfg.Logger = logger
	x, err := New(s, cfg)
	require.NoError(t, err)
	return x
}

// fixture quads reuse a small set of OIDs across positions so that every
// pattern has both matches and near misses
func fixture() []Quad {
	var quads []Quad
	for s := int64(1); s <= 3; s++ {
		for p := int64(9); p <= 10; p++ {
			for _, o := range []int64{2, 9, 10} {
				for _, g := range []int64{0, 10} {
					if (s+p+o+g)%3 == 0 {
						continue
					}
					quads = append(quads, Quad{Subject: s, Predicate: p, Object: o, Graph: g})
				}
			}
		}
	}
	return quads
}

func sortQuads(quads []Quad) []Quad {
	sorted := append([]Quad{}, quads...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		if a.Object != b.Object {
			return a.Object < b.Object
		}
		return a.Graph < b.Graph
	})
	return sorted
}

func TestIndex_SearchDelete(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			x := newIndex(t, s, Config{})
			q := Quad{Subject: 1, Predicate: 2, Object: 3, Graph: 0}

			found, err := x.Search(q)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, x.Index(q))
			found, err = x.Search(q)
			require.NoError(t, err)
			assert.True(t, found)

			err = x.Index(q)
			assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

			require.NoError(t, x.Delete(q))
			found, err = x.Search(q)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, x.Delete(q))
			require.NoError(t, x.Delete(Quad{Subject: 7, Predicate: 7, Object: 7, Graph: 7}))

			// a deleted quad can be indexed again
			require.NoError(t, x.Index(q))
		})
	}
}

func TestIndex_RangeEveryBoundCombination(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			x := newIndex(t, s, Config{})
			quads := fixture()
			for _, q := range quads {
				require.NoError(t, x.Index(q))
			}

			probes := []Quad{
				{Subject: 1, Predicate: 9, Object: 10, Graph: 10},
				{Subject: 2, Predicate: 10, Object: 9, Graph: 0},
				{Subject: 3, Predicate: 10, Object: 2, Graph: 10},
				{Subject: 4, Predicate: 11, Object: 5, Graph: 1},
			}

			for _, probe := range probes {
				for mask := 0; mask < 16; mask++ {
					var pattern Pattern
					if mask&1 != 0 {
						pattern.Subject = Bind(probe.Subject)
					}
					if mask&2 != 0 {
						pattern.Predicate = Bind(probe.Predicate)
					}
					if mask&4 != 0 {
						pattern.Object = Bind(probe.Object)
					}
					if mask&8 != 0 {
						pattern.Graph = Bind(probe.Graph)
					}

					var expected []Quad
					for _, q := range quads {
						if pattern.Matches(q) {
							expected = append(expected, q)
						}
					}

					got, err := x.Range(pattern)
					require.NoError(t, err)
					assert.Equal(t, sortQuads(expected), sortQuads(got), "probe %v mask %04b", probe, mask)

					if mask == 15 {
						found, err := x.Search(probe)
						require.NoError(t, err)
						assert.Equal(t, found, len(got) == 1)
					}
				}
			}
		})
	}
}

func TestIndex_RangeOrderedBySelectedPermutation(t *testing.T) {
	s, err := storage.NewInMemoryBadgerStorage()
	require.NoError(t, err)
	defer s.Close()
	x := newIndex(t, s, Config{})

	for _, q := range []Quad{
		{Subject: 10, Predicate: 1, Object: 100, Graph: 0},
		{Subject: 2, Predicate: 1, Object: 9, Graph: 0},
		{Subject: 9, Predicate: 1, Object: 10, Graph: 0},
		{Subject: 1, Predicate: 2, Object: 9, Graph: 0},
	} {
		require.NoError(t, x.Index(q))
	}

	// POG order: object, then graph, then subject
	got, err := x.Range(Pattern{Predicate: Bind(1)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{9, 10, 100}, []int64{got[0].Object, got[1].Object, got[2].Object})

	// SPOG order over everything
	got, err = x.Range(Pattern{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []int64{1, 2, 9, 10}, []int64{got[0].Subject, got[1].Subject, got[2].Subject, got[3].Subject})
}

// OIDs 9 and 10 compare numerically: "10" < "9" as strings would drop one
// of them from the range over the wildcarded tail.
func TestIndex_RangeNumericOrdering(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			x := newIndex(t, s, Config{})

			nine := Quad{Subject: 5, Predicate: 7, Object: 9, Graph: 0}
			ten := Quad{Subject: 5, Predicate: 7, Object: 10, Graph: 0}
			other := Quad{Subject: 5, Predicate: 8, Object: 9, Graph: 0}
			for _, q := range []Quad{ten, nine, other} {
				require.NoError(t, x.Index(q))
			}

			got, err := x.Range(Pattern{Subject: Bind(5), Predicate: Bind(7)})
			require.NoError(t, err)
			assert.Equal(t, []Quad{nine, ten}, got)

			nineSubject := Quad{Subject: 9, Predicate: 1, Object: 1, Graph: 0}
			tenSubject := Quad{Subject: 10, Predicate: 1, Object: 1, Graph: 0}
			require.NoError(t, x.Index(nineSubject))
			require.NoError(t, x.Index(tenSubject))

			got, err = x.Range(Pattern{Subject: Bind(9)})
			require.NoError(t, err)
			assert.Equal(t, []Quad{nineSubject}, got)

			got, err = x.Range(Pattern{Subject: Bind(10)})
			require.NoError(t, err)
			assert.Equal(t, []Quad{tenSubject}, got)
		})
	}
}

func TestIndex_ClearAndCount(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			x := newIndex(t, s, Config{})
			for _, q := range fixture() {
				require.NoError(t, x.Index(q))
			}

			count, err := x.Count()
			require.NoError(t, err)
			assert.Equal(t, len(fixture()), count)

			require.NoError(t, x.Clear())

			got, err := x.Range(Pattern{})
			require.NoError(t, err)
			assert.Empty(t, got)
			count, err = x.Count()
			require.NoError(t, err)
			assert.Equal(t, 0, count)

			q := fixture()[0]
			require.NoError(t, x.Index(q))
			found, err := x.Search(q)
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestIndex_SeparateNamesShareStorage(t *testing.T) {
	s, err := storage.NewInMemoryBadgerStorage()
	require.NoError(t, err)
	defer s.Close()

	first := newIndex(t, s, Config{Name: "first"})
	second := newIndex(t, s, Config{Name: "second"})
	q := Quad{Subject: 1, Predicate: 2, Object: 3}

	require.NoError(t, first.Index(q))
	require.NoError(t, second.Index(q))
	require.NoError(t, first.Clear())

	found, err := second.Search(q)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestIndex_Metrics(t *testing.T) {
	s, err := storage.NewInMemoryBadgerStorage()
	require.NoError(t, err)
	defer s.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	x := newIndex(t, s, Config{Metrics: m})
	q := Quad{Subject: 1, Predicate: 2, Object: 3}

	require.NoError(t, x.Index(q))
	assert.Error(t, x.Index(q))
	_, err = x.Range(Pattern{Object: Bind(3)})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuadOperations.WithLabelValues("index", metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuadOperations.WithLabelValues("index", metrics.StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexSelections.WithLabelValues("OGS")))
}
