package memory

// table is a tenant-scoped collection: every read and write names the owning client.
// Callers hold Store.mu. Rows are cloned on the way in and out.
type table[T any] struct {
	rows  map[string]map[string]T
	order map[string][]string
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{
		rows:  make(map[string]map[string]T),
		order: make(map[string][]string),
		clone: clone,
	}
}

func (t *table[T]) insert(clientID string, id string, v T) bool {
	rows, ok := t.rows[clientID]
	if !ok {
		rows = make(map[string]T)
		t.rows[clientID] = rows
	}
	if _, exists := rows[id]; exists {
		return false
	}
	rows[id] = t.clone(v)
	t.order[clientID] = append(t.order[clientID], id)
	return true
}

func (t *table[T]) get(clientID string, id string) (T, bool) {
	v, ok := t.rows[clientID][id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(v), true
}

func (t *table[T]) put(clientID string, id string, v T) bool {
	rows := t.rows[clientID]
	if _, exists := rows[id]; !exists {
		return false
	}
	rows[id] = t.clone(v)
	return true
}

// list returns matching rows in insertion order; keep may be nil.
func (t *table[T]) list(clientID string, keep func(T) bool) []T {
	rows := t.rows[clientID]
	out := make([]T, 0, len(rows))
	for _, id := range t.order[clientID] {
		v := rows[id]
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, t.clone(v))
	}
	return out
}

func (t *table[T]) count(clientID string, keep func(T) bool) int {
	if keep == nil {
		return len(t.rows[clientID])
	}
	n := 0
	for _, v := range t.rows[clientID] {
		if keep(v) {
			n++
		}
	}
	return n
}
