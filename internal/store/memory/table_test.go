package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id   string
	tags []string
}

func TestTableIsTenantScopedAndCloned(t *testing.T) {
	tbl := newTable(func(r row) row {
		r.tags = append([]string(nil), r.tags...)
		return r
	})

	require.True(t, tbl.insert("c1", "a", row{id: "a", tags: []string{"x"}}))
	require.False(t, tbl.insert("c1", "a", row{id: "a"}))
	require.True(t, tbl.insert("c2", "a", row{id: "a"}))

	got, ok := tbl.get("c1", "a")
	require.True(t, ok)
	got.tags[0] = "mutated"

	again, _ := tbl.get("c1", "a")
	assert.Equal(t, "x", again.tags[0])

	_, ok = tbl.get("c3", "a")
	assert.False(t, ok)
	assert.False(t, tbl.put("c3", "a", row{}))
}

func TestTableListKeepsInsertionOrder(t *testing.T) {
	tbl := newTable[row](nil)
	for _, id := range []string{"b", "a", "c"} {
		tbl.insert("c1", id, row{id: id})
	}

	ids := []string{}
	for _, r := range tbl.list("c1", nil) {
		ids = append(ids, r.id)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
	assert.Equal(t, 1, tbl.count("c1", func(r row) bool { return r.id == "c" }))
	assert.Empty(t, tbl.list("c2", nil))
}
