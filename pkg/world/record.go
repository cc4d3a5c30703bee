package world

import (
	"errors"
	"fmt"

	memdb "github.com/hashicorp/go-memdb"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("world: not found")

const (
	entityTable    = "entity"
	componentTable = "component"
)

// componentRecord is the memdb row backing one (entity, component key,
// kind) triple.
type componentRecord struct {
	Key    uint64
	Entity uint64
	KindID uint16
}

// entityRecord is the memdb row marking that an entity exists in the
// authoritative world record, independent of whether it currently
// carries any components.
type entityRecord struct {
	Entity uint64
}

// Record is the server-global bookkeeping described for the
// authoritative world: for each entity, the set of component keys it
// owns; for each component key, the (entity, kind) it belongs to. It
// is built the same way a typed state wrapper wraps a memdb.MemDB with
// typed collections, adapted here to a single two-table schema since
// entities and components are homogeneous records rather than dozens
// of distinct entity types.
type Record struct {
	db      *memdb.MemDB
	resolve func(uint16) (Kind, bool)
}

// NewRecord constructs an empty Record. resolve maps a wire kind id
// back to the application's Kind value for Get/All queries.
func NewRecord(resolve func(uint16) (Kind, bool)) (*Record, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			entityTable: {
				Name: entityTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "Entity"},
					},
				},
			},
			componentTable: {
				Name: componentTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "Key"},
					},
					"entity": {
						Name:    "entity",
						Unique:  false,
						Indexer: &memdb.UintFieldIndex{Field: "Entity"},
					},
				},
			},
		},
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("world: creating record store: %w", err)
	}
	return &Record{db: db, resolve: resolve}, nil
}

// AddEntity registers e as present in the world record.
func (r *Record) AddEntity(e EntityID) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(entityTable, &entityRecord{Entity: uint64(e)}); err != nil {
		return fmt.Errorf("world: adding entity %d: %w", e, err)
	}
	txn.Commit()
	return nil
}

// RemoveEntity deletes e and every component key belonging to it.
// Invariant: a component key always maps to exactly one entity, so
// removing the entity's row set leaves no orphaned component records.
func (r *Record) RemoveEntity(e EntityID) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(componentTable, "entity", uint64(e))
	if err != nil {
		return fmt.Errorf("world: listing components of entity %d: %w", e, err)
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if err := txn.Delete(componentTable, obj); err != nil {
			return fmt.Errorf("world: removing component of entity %d: %w", e, err)
		}
	}
	if err := txn.Delete(entityTable, &entityRecord{Entity: uint64(e)}); err != nil {
		return fmt.Errorf("world: removing entity %d: %w", e, err)
	}
	txn.Commit()
	return nil
}

// HasEntity reports whether e is currently present.
func (r *Record) HasEntity(e EntityID) bool {
	txn := r.db.Txn(false)
	obj, err := txn.First(entityTable, "id", uint64(e))
	return err == nil && obj != nil
}

// AddComponent registers key as belonging to e with the given kind.
// Invariant: every component key maps to exactly one entity; the
// entity must already be present.
func (r *Record) AddComponent(e EntityID, key uint64, kind Kind) error {
	if !r.HasEntity(e) {
		panic(fmt.Sprintf("world: adding component to unregistered entity %d", e))
	}
	txn := r.db.Txn(true)
	defer txn.Abort()
	if existing, _ := txn.First(componentTable, "id", key); existing != nil {
		panic(fmt.Sprintf("world: double-registering component key %d", key))
	}
	rec := &componentRecord{Key: key, Entity: uint64(e), KindID: kind.ToU16()}
	if err := txn.Insert(componentTable, rec); err != nil {
		return fmt.Errorf("world: adding component %d: %w", key, err)
	}
	txn.Commit()
	return nil
}

// RemoveComponent deletes the record for key.
func (r *Record) RemoveComponent(key uint64) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	if err := txn.Delete(componentTable, &componentRecord{Key: key}); err != nil {
		return fmt.Errorf("world: removing component %d: %w", key, err)
	}
	txn.Commit()
	return nil
}

// ComponentOwner returns the entity and kind owning key.
func (r *Record) ComponentOwner(key uint64) (EntityID, Kind, error) {
	txn := r.db.Txn(false)
	obj, err := txn.First(componentTable, "id", key)
	if err != nil {
		return 0, nil, fmt.Errorf("world: looking up component %d: %w", key, err)
	}
	if obj == nil {
		return 0, nil, ErrNotFound
	}
	rec := obj.(*componentRecord)
	kind, ok := r.resolve(rec.KindID)
	if !ok {
		return 0, nil, fmt.Errorf("world: unknown kind id %d for component %d", rec.KindID, key)
	}
	return EntityID(rec.Entity), kind, nil
}

// ComponentsOf returns every component key owned by e.
func (r *Record) ComponentsOf(e EntityID) ([]uint64, error) {
	txn := r.db.Txn(false)
	it, err := txn.Get(componentTable, "entity", uint64(e))
	if err != nil {
		return nil, fmt.Errorf("world: listing components of entity %d: %w", e, err)
	}
	var keys []uint64
	for obj := it.Next(); obj != nil; obj = it.Next() {
		keys = append(keys, obj.(*componentRecord).Key)
	}
	return keys, nil
}

// Entities returns every entity currently present.
func (r *Record) Entities() ([]EntityID, error) {
	txn := r.db.Txn(false)
	it, err := txn.Get(entityTable, "id")
	if err != nil {
		return nil, fmt.Errorf("world: listing entities: %w", err)
	}
	var out []EntityID
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, EntityID(obj.(*entityRecord).Entity))
	}
	return out, nil
}
