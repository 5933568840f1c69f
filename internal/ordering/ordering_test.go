package ordering

import (
	"context"
	"errors"
	"sort"
	"testing"
)

// memStore is an in-memory Store with the same semantics the Postgres
// implementation guarantees: counter-backed appends, all-or-nothing reorders
// that reset the counter, and transactions that roll every change back on
// error.
type memStore struct {
	children map[Scope]map[string]int // id -> position
	counters map[Scope]int
	txDepth  int

	lastReparentInTx bool
	applyOrderErr    error
}

func newMemStore() *memStore {
	return &memStore{
		children: make(map[Scope]map[string]int),
		counters: make(map[Scope]int),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.txDepth > 0 {
		return fn(ctx)
	}
	countersBefore := make(map[Scope]int, len(m.counters))
	for scope, seq := range m.counters {
		countersBefore[scope] = seq
	}
	childrenBefore := make(map[Scope]map[string]int, len(m.children))
	for scope, kids := range m.children {
		copied := make(map[string]int, len(kids))
		for id, pos := range kids {
			copied[id] = pos
		}
		childrenBefore[scope] = copied
	}

	m.txDepth++
	err := fn(ctx)
	m.txDepth--
	if err != nil {
		m.counters = countersBefore
		m.children = childrenBefore
	}
	return err
}

func (m *memStore) NextPosition(_ context.Context, scope Scope) (int, error) {
	pos := m.counters[scope]
	m.counters[scope] = pos + 1
	return pos, nil
}

func (m *memStore) ListChildIDs(_ context.Context, scope Scope) ([]string, error) {
	kids := m.children[scope]
	ids := make([]string, 0, len(kids))
	for id := range kids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return kids[ids[i]] < kids[ids[j]] })
	return ids, nil
}

func (m *memStore) ApplyOrder(_ context.Context, scope Scope, orderedIDs []string) error {
	if m.applyOrderErr != nil {
		return m.applyOrderErr
	}
	for index, id := range orderedIDs {
		m.children[scope][id] = index
	}
	m.counters[scope] = len(orderedIDs)
	return nil
}

func (m *memStore) Reparent(_ context.Context, childID string, to Scope, position int) error {
	m.lastReparentInTx = m.txDepth > 0
	for scope, kids := range m.children {
		if _, ok := kids[childID]; ok {
			delete(kids, childID)
			_ = scope
		}
	}
	if m.children[to] == nil {
		m.children[to] = make(map[string]int)
	}
	m.children[to][childID] = position
	return nil
}

func (m *memStore) add(scope Scope, id string) {
	if m.children[scope] == nil {
		m.children[scope] = make(map[string]int)
	}
	pos := m.counters[scope]
	m.counters[scope] = pos + 1
	m.children[scope][id] = pos
}

func TestAppendProducesUniqueIncreasingPositions(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: GroupTasks, ParentID: "g1"}

	for want := 0; want < 5; want++ {
		got, err := engine.Append(context.Background(), scope, func(context.Context, int) error { return nil })
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got != want {
			t.Fatalf("Append() = %d, want %d", got, want)
		}
	}
}

func TestReorderIsDeterministic(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: GroupTasks, ParentID: "g1"}
	for _, id := range []string{"A", "B", "C"} {
		store.add(scope, id)
	}

	if err := engine.Reorder(context.Background(), scope, []string{"C", "A", "B"}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	ids, err := store.ListChildIDs(context.Background(), scope)
	if err != nil {
		t.Fatalf("ListChildIDs() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != "C" || ids[1] != "A" || ids[2] != "B" {
		t.Fatalf("expected listing [C A B], got %v", ids)
	}
	for want, id := range []string{"C", "A", "B"} {
		if pos := store.children[scope][id]; pos != want {
			t.Fatalf("expected %s at position %d, got %d", id, want, pos)
		}
	}
}

func TestReorderRejectsIncompleteSiblingSet(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: BoardGroups, ParentID: "b1"}
	for _, id := range []string{"g1", "g2", "g3"} {
		store.add(scope, id)
	}

	err := engine.Reorder(context.Background(), scope, []string{"g3", "g1"})
	var invalid *InvalidOrderError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOrderError, got %v", err)
	}
	if len(invalid.Missing) != 1 || invalid.Missing[0] != "g2" {
		t.Fatalf("expected missing [g2], got %v", invalid.Missing)
	}

	// Nothing may change on rejection.
	if pos := store.children[scope]["g3"]; pos != 2 {
		t.Fatalf("expected g3 untouched at position 2, got %d", pos)
	}
}

func TestReorderRejectsUnknownAndDuplicateIDs(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: BoardColumns, ParentID: "b1"}
	store.add(scope, "c1")
	store.add(scope, "c2")

	err := engine.Reorder(context.Background(), scope, []string{"c2", "c1", "c9"})
	var invalid *InvalidOrderError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOrderError, got %v", err)
	}
	if len(invalid.Extra) != 1 || invalid.Extra[0] != "c9" {
		t.Fatalf("expected extra [c9], got %v", invalid.Extra)
	}

	err = engine.Reorder(context.Background(), scope, []string{"c2", "c2", "c1"})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOrderError for duplicates, got %v", err)
	}
	if len(invalid.Duplicates) != 1 || invalid.Duplicates[0] != "c2" {
		t.Fatalf("expected duplicate [c2], got %v", invalid.Duplicates)
	}
}

func TestMoveAppendsAtDestinationEnd(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	from := Scope{Parent: GroupTasks, ParentID: "g1"}
	to := Scope{Parent: GroupTasks, ParentID: "g2"}
	store.add(from, "t1")
	store.add(from, "t2")
	store.add(to, "t3")
	store.add(to, "t4")

	pos, err := engine.Move(context.Background(), "t1", to)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2 at destination, got %d", pos)
	}

	fromIDs, _ := store.ListChildIDs(context.Background(), from)
	if len(fromIDs) != 1 || fromIDs[0] != "t2" {
		t.Fatalf("expected source listing [t2], got %v", fromIDs)
	}
	toIDs, _ := store.ListChildIDs(context.Background(), to)
	if len(toIDs) != 3 || toIDs[2] != "t1" {
		t.Fatalf("expected moved task last in destination, got %v", toIDs)
	}
}

func TestAppendAfterReorderContinuesPastDenseSequence(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: TaskSubTasks, ParentID: "t1"}
	for _, id := range []string{"s1", "s2", "s3"} {
		store.add(scope, id)
	}

	if err := engine.Reorder(context.Background(), scope, []string{"s3", "s2", "s1"}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	pos, err := engine.Append(context.Background(), scope, func(context.Context, int) error { return nil })
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if pos != 3 {
		t.Fatalf("expected append after reorder to claim 3, got %d", pos)
	}
}

func TestAppendRunsInsertInsideClaimTransaction(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: GroupTasks, ParentID: "g1"}
	store.add(scope, "t1")
	store.add(scope, "t2")

	insertedAt := -1
	pos, err := engine.Append(context.Background(), scope, func(_ context.Context, position int) error {
		if store.txDepth == 0 {
			t.Fatal("insert ran outside the claim transaction")
		}
		insertedAt = position
		store.children[scope]["t3"] = position
		return nil
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if pos != 2 || insertedAt != 2 {
		t.Fatalf("expected insert at claimed position 2, got %d / %d", pos, insertedAt)
	}
}

func TestAppendInsertFailureReleasesClaim(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: GroupTasks, ParentID: "g1"}
	store.add(scope, "t1")
	store.add(scope, "t2")

	boom := errors.New("insert failed")
	_, err := engine.Append(context.Background(), scope, func(context.Context, int) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert error surfaced, got %v", err)
	}
	if store.counters[scope] != 2 {
		t.Fatalf("expected counter rolled back to 2, got %d", store.counters[scope])
	}

	pos, err := engine.Append(context.Background(), scope, func(context.Context, int) error { return nil })
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected the released slot 2 reclaimed, got %d", pos)
	}
}

func TestMoveClaimsAndReparentsInOneTransaction(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	from := Scope{Parent: GroupTasks, ParentID: "g1"}
	to := Scope{Parent: GroupTasks, ParentID: "g2"}
	store.add(from, "t1")
	store.add(to, "t2")

	pos, err := engine.Move(context.Background(), "t1", to)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected position 1 at destination, got %d", pos)
	}
	if !store.lastReparentInTx {
		t.Fatal("expected reparent to run inside the claim transaction")
	}
	if store.txDepth != 0 {
		t.Fatalf("expected transaction closed after Move, got depth %d", store.txDepth)
	}
}

func TestReorderSurfacesConflictingPosition(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	scope := Scope{Parent: GroupTasks, ParentID: "g1"}
	store.add(scope, "t1")
	store.add(scope, "t2")
	store.applyOrderErr = ErrConflictingPosition

	err := engine.Reorder(context.Background(), scope, []string{"t2", "t1"})
	if !errors.Is(err, ErrConflictingPosition) {
		t.Fatalf("expected ErrConflictingPosition, got %v", err)
	}
}
