package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	op  Op
	key string
	val int
}

func record(out *[]note) Handler[string, int] {
	return func(op Op, k string, v int) { *out = append(*out, note{op, k, v}) }
}

func TestMapInitialSyncAndMutations(t *testing.T) {
	m := NewMap[string, int]()
	require.NoError(t, m.Add("a", 1))

	var got []note
	cancel := m.Subscribe(record(&got))
	require.Equal(t, []note{{OpAdd, "a", 1}}, got)

	m.Set("a", 2)
	m.Set("b", 3)
	_, ok := m.Remove("a")
	require.True(t, ok)
	_, ok = m.Remove("missing")
	require.False(t, ok)

	assert.Equal(t, []note{
		{OpAdd, "a", 1},
		{OpSet, "a", 2},
		{OpAdd, "b", 3},
		{OpRemove, "a", 2},
	}, got)

	cancel()
	cancel()
	m.Set("b", 4)
	assert.Len(t, got, 4)
}

func TestMapAddRejectsExisting(t *testing.T) {
	m := NewMap[string, int]()
	require.NoError(t, m.Add("a", 1))
	assert.ErrorIs(t, m.Add("a", 2), ErrKeyExists)
	v, _ := m.Get("a")
	assert.Equal(t, 1, v)
}

func TestMapReentrantMutationKeepsOrder(t *testing.T) {
	m := NewMap[string, int]()
	var first, second []note
	m.Subscribe(func(op Op, k string, v int) {
		first = append(first, note{op, k, v})
		if k == "a" && op == OpAdd {
			m.Set("b", v+1)
		}
	})
	m.Subscribe(record(&second))

	m.Set("a", 1)
	want := []note{{OpAdd, "a", 1}, {OpAdd, "b", 2}}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestMapApplyMirrorsRemoteOps(t *testing.T) {
	mirror := NewMap[string, int]()
	var got []note
	mirror.Subscribe(record(&got))

	mirror.Apply(OpAdd, "k", 1)
	mirror.Apply(OpSet, "k", 2)
	mirror.Apply(OpRemove, "k", 0)

	assert.Equal(t, []note{{OpAdd, "k", 1}, {OpSet, "k", 2}, {OpRemove, "k", 2}}, got)
	assert.Zero(t, mirror.Len())
}

func TestDedupSuppressesAdjacentRepeat(t *testing.T) {
	var f Filter[note]
	var got []note
	h := Dedup(&f, func(op Op, k string, v int) note { return note{op, k, v} }, record(&got))

	h(OpSet, "k", 1)
	h(OpSet, "k", 1)
	assert.Len(t, got, 1)

	h(OpSet, "k", 2)
	assert.Len(t, got, 2, "different value for same key passes")

	h(OpSet, "k", 1)
	h(OpSet, "k", 2)
	assert.Len(t, got, 4, "non-adjacent repeats are not caught")
}

func TestRedeliverIsFilteredOncePerSubscriber(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("k", 7)

	applied := map[string]int{}
	for _, client := range []string{"c1", "c2"} {
		var f Filter[note]
		m.Subscribe(Dedup(&f, func(op Op, k string, v int) note { return note{OpSet, k, v} },
			func(op Op, k string, v int) { applied[client]++ }))
	}
	m.Redeliver("k")

	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, applied)
}
