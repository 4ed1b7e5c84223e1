package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Note string
}

func itemKey(i item) string { return i.ID }

func TestOverwrite(t *testing.T) {
	a, b := "old", "new"
	assert.Equal(t, &b, Overwrite(&a, &b))
	assert.Equal(t, &a, Overwrite(&a, nil))
	assert.Nil(t, Overwrite[string](nil, nil))
}

func TestAppendDoesNotAliasExisting(t *testing.T) {
	existing := make([]string, 1, 4)
	existing[0] = "a"

	first := Append(existing, []string{"b"})
	second := Append(existing, []string{"c"})

	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a", "c"}, second)
	assert.Equal(t, []string{"a"}, existing)
}

func TestUnionStrings(t *testing.T) {
	got := UnionStrings([]string{"sales", "rag"}, []string{"rag", "inventory", "sales"})
	assert.Equal(t, []string{"sales", "rag", "inventory"}, got)

	assert.Equal(t, []string{"sales"}, UnionStrings([]string{"sales"}, nil))
}

func TestMergeByKeyReplacesInPlace(t *testing.T) {
	existing := []item{{ID: "p1", Note: "v1"}, {ID: "p2", Note: "v1"}}
	incoming := []item{{ID: "p2", Note: "v2"}, {ID: "p3", Note: "v1"}}

	got := MergeByKey(existing, incoming, itemKey)

	require.Len(t, got, 3)
	assert.Equal(t, item{ID: "p1", Note: "v1"}, got[0])
	assert.Equal(t, item{ID: "p2", Note: "v2"}, got[1])
	assert.Equal(t, item{ID: "p3", Note: "v1"}, got[2])
	// existing untouched
	assert.Equal(t, "v1", existing[1].Note)
}

func TestMergeByKeyDeterministicUnderFixedArrivalOrder(t *testing.T) {
	existing := []item{{ID: "a", Note: "base"}}
	batch1 := []item{{ID: "b", Note: "first"}}
	batch2 := []item{{ID: "a", Note: "second"}, {ID: "c", Note: "second"}}

	run := func() []item {
		out := MergeByKey(existing, batch1, itemKey)
		return MergeByKey(out, batch2, itemKey)
	}

	first := run()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run())
	}
	assert.Equal(t, []item{
		{ID: "a", Note: "second"},
		{ID: "b", Note: "first"},
		{ID: "c", Note: "second"},
	}, first)
}

func TestFirstWriterByKey(t *testing.T) {
	existing := []item{{ID: "x", Note: "first"}}
	incoming := []item{{ID: "x", Note: "late"}, {ID: "y", Note: "first"}, {Note: "no id"}}

	got := FirstWriterByKey(existing, incoming, itemKey)

	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Note)
	assert.Equal(t, "y", got[1].ID)
	assert.Equal(t, "no id", got[2].Note)
}

func TestMergeMap(t *testing.T) {
	existing := map[string]float64{"a": 1, "b": 1}
	got := MergeMap(existing, map[string]float64{"b": 2, "c": 3})

	assert.Equal(t, map[string]float64{"a": 1, "b": 2, "c": 3}, got)
	assert.Equal(t, 1.0, existing["b"])
}

func TestDedupeByKeyIdempotent(t *testing.T) {
	l := []item{{ID: "x", Note: "keep"}, {ID: "y"}, {ID: "x", Note: "drop"}}

	doubled := append(append([]item(nil), l...), l...)
	once := DedupeByKey(l, itemKey)
	fromDoubled := DedupeByKey(doubled, itemKey)

	assert.Equal(t, once, fromDoubled)
	assert.Equal(t, once, DedupeByKey(once, itemKey))
	assert.Equal(t, []item{{ID: "x", Note: "keep"}, {ID: "y"}}, once)
}

func TestDedupeByKeyKeepsAnonymousItems(t *testing.T) {
	l := []item{{Note: "a"}, {ID: "x"}, {Note: "b"}}
	assert.Equal(t, l, DedupeByKey(l, itemKey))
}
