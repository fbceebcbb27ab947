package flatdb

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Store runs queries and updates against the collections of an Adapter.
//
// Every call loads the collection, works on it in memory and, for writes,
// persists the complete collection again. Calls on one Store are serialized;
// nothing coordinates separate Stores or processes sharing the same data.
type Store struct {
	adapter   Adapter
	logf      func(format string, args ...any)
	verbose   bool
	validator Validator
	updater   Updater
	idField   string
	newID     func() string

	mu             sync.Mutex
	indices        map[string]*Index
	changeHandlers []changeHandler

	ReadCount       atomic.Uint64
	WriteCount      atomic.Uint64
	IndexBuildCount atomic.Uint64
}

type Options struct {
	Logf    func(format string, args ...any)
	Verbose bool

	// Validator checks every record before it is written.
	Validator Validator

	// Now is the clock of currentDate; defaults to time.Now.
	Now func() time.Time

	// IDField is the field holding record identifiers; defaults to "_id".
	IDField string

	// NewID generates identifiers for records that have none; defaults to
	// random UUIDs.
	NewID func() string
}

func Open(adapter Adapter, opt Options) *Store {
	if opt.IDField == "" {
		opt.IDField = "_id"
	}
	if opt.NewID == nil {
		opt.NewID = uuid.NewString
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Store{
		adapter:   adapter,
		logf:      opt.Logf,
		verbose:   opt.Verbose,
		validator: opt.Validator,
		updater:   Updater{Now: opt.Now},
		idField:   opt.IDField,
		newID:     opt.NewID,
		indices:   make(map[string]*Index),
	}
}

func (s *Store) Adapter() Adapter {
	return s.adapter
}

func (s *Store) IDField() string {
	return s.idField
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.indices)
	return s.adapter.Close()
}

func (s *Store) debugf(format string, args ...any) {
	if s.verbose && s.logf != nil {
		s.logf("flatdb: "+format, args...)
	}
}

// Collections lists the stored collections when the adapter supports it.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	l, ok := s.adapter.(Lister)
	if !ok {
		return nil, fmt.Errorf("flatdb: %T cannot list collections", s.adapter)
	}
	return l.List(ctx)
}

// Invalidate drops the cached index of the collection. Call it after the
// collection has been rewritten by someone other than this Store.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.indices[name]; found {
		delete(s.indices, name)
		s.debugf("INVALIDATE %s", name)
	}
}

func (s *Store) load(ctx context.Context, name string) (Collection, error) {
	coll, err := s.adapter.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	s.ReadCount.Add(1)
	return coll, nil
}

func (s *Store) persist(ctx context.Context, name string, coll Collection) error {
	delete(s.indices, name)
	if err := s.adapter.Persist(ctx, name, coll); err != nil {
		return err
	}
	s.WriteCount.Add(1)
	s.debugf("PERSIST %s => %d records", name, len(coll))
	return nil
}

// index returns the cached index of the collection, building it when absent.
func (s *Store) index(name string, coll Collection) *Index {
	idx := s.indices[name]
	if idx == nil {
		start := time.Now()
		idx = BuildIndex(coll)
		s.indices[name] = idx
		s.IndexBuildCount.Add(1)
		s.debugf("INDEX %s => %d records, %d fields, %d ms", name, len(coll), len(idx.fields), time.Since(start).Milliseconds())
	}
	return idx
}

func (s *Store) validate(name string, rec Record, coll Collection, skip int) error {
	if s.validator == nil {
		return nil
	}
	others := coll
	if skip >= 0 {
		others = slices.Concat(coll[:skip], coll[skip+1:])
	}
	if errs := s.validator.Validate(rec, others); len(errs) > 0 {
		return &ValidationError{Collection: name, Errors: errs}
	}
	return nil
}

// Insert appends a copy of rec, assigning an identifier when it has none,
// and returns the stored copy.
func (s *Store) Insert(ctx context.Context, name string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec == nil {
		return nil, opErrf("insert", "", nil, "nil record")
	}
	coll, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	rec = rec.Clone()
	s.ensureID(rec)
	if err := s.validate(name, rec, coll, -1); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, name, append(coll, rec)); err != nil {
		return nil, err
	}
	if s.verbose {
		s.debugf("INSERT %s => %v", name, rec)
	}
	s.notify(name, OpInsert, nil, rec)
	return rec.Clone(), nil
}

func (s *Store) ensureID(rec Record) Value {
	if id, ok := rec.Get(s.idField); ok && !id.IsNull() {
		return id
	}
	id := StringValue(s.newID())
	rec.Set(s.idField, id)
	return id
}

// FindOne returns a copy of the first record matching query, or nil.
func (s *Store) FindOne(ctx context.Context, name string, query *Object) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	rec := EvaluateQuery(coll, query, s.index(name, coll))
	if rec == nil {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Find returns copies of all records matching query, in collection order.
func (s *Store) Find(ctx context.Context, name string, query *Object) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	var result Collection
	for _, pos := range FindAll(coll, query, s.index(name, coll)) {
		result = append(result, coll[pos].Clone())
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context, name string, query *Object) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return 0, err
	}
	return len(FindAll(coll, query, s.index(name, coll))), nil
}

type UpdateOptions struct {
	// Upsert inserts a record seeded from the query when nothing matches,
	// and lets operators create missing fields and containers.
	Upsert bool

	// Multi updates every matching record instead of the first one.
	Multi bool
}

type UpdateResult struct {
	Matched    int
	Modified   int
	UpsertedID Value
}

// Update applies update to the records matching query.
//
// Each record is updated on a copy, validated and only then committed, so a
// failing record keeps its previous value. With Multi, records committed
// before a failure are persisted and the error is returned.
func (s *Store) Update(ctx context.Context, name string, query, update *Object, opt UpdateOptions) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result UpdateResult
	coll, err := s.load(ctx, name)
	if err != nil {
		return result, err
	}

	var positions []int
	if opt.Multi {
		positions = FindAll(coll, query, s.index(name, coll))
	} else if rec := EvaluateQuery(coll, query, s.index(name, coll)); rec != nil {
		positions = []int{slices.Index(coll, rec)}
	}
	result.Matched = len(positions)

	if len(positions) == 0 {
		if !opt.Upsert {
			return result, nil
		}
		rec, err := s.upsertRecord(name, query, update, coll)
		if err != nil {
			return result, err
		}
		result.UpsertedID, _ = rec.Get(s.idField)
		if err := s.persist(ctx, name, append(coll, rec)); err != nil {
			return UpdateResult{}, err
		}
		s.notify(name, OpInsert, nil, rec)
		return result, nil
	}

	var updateErr error
	var olds, modified []Record
	for _, pos := range positions {
		old := coll[pos]
		changed, err := s.updateRecord(name, coll, pos, update, opt.Upsert)
		if err != nil {
			updateErr = err
			break
		}
		if changed {
			olds = append(olds, old)
			modified = append(modified, coll[pos])
		}
	}
	result.Modified = len(modified)
	if result.Modified > 0 {
		if err := s.persist(ctx, name, coll); err != nil {
			return UpdateResult{}, err
		}
		for i, rec := range modified {
			s.notify(name, OpUpdate, olds[i], rec)
		}
	}
	if updateErr != nil {
		s.debugf("UPDATE.FAIL %s after %d records: %v", name, result.Modified, updateErr)
	}
	return result, updateErr
}

func (s *Store) updateRecord(name string, coll Collection, pos int, update *Object, upsert bool) (bool, error) {
	orig := coll[pos]
	rec, err := s.updater.Apply(orig.Clone(), update, upsert)
	if err != nil {
		return false, err
	}
	if err := s.checkID(orig, rec); err != nil {
		return false, err
	}
	if rec.Equal(orig) {
		return false, nil
	}
	if err := s.validate(name, rec, coll, pos); err != nil {
		return false, err
	}
	coll[pos] = rec
	return true, nil
}

func (s *Store) checkID(orig, rec Record) error {
	before, hadID := orig.Get(s.idField)
	after, hasID := rec.Get(s.idField)
	if hadID != hasID || !Equal(before, after) {
		return opErrf("update", s.idField, nil, "cannot modify the identifier field")
	}
	return nil
}

// upsertRecord seeds a record from the query's fields and applies update to
// it. Path keys of the query become nested values.
func (s *Store) upsertRecord(name string, query, update *Object, coll Collection) (Record, error) {
	rec := NewObject()
	for k, v := range query.All() {
		if !isPathKey(k) {
			rec.Set(k, v.Clone())
		} else if err := SetPath(rec, k, v.Clone()); err != nil {
			return nil, err
		}
	}
	rec, err := s.updater.Apply(rec, update, true)
	if err != nil {
		return nil, err
	}
	s.ensureID(rec)
	if err := s.validate(name, rec, coll, -1); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the first record matching query, or all of them with multi,
// and returns the number removed.
func (s *Store) Delete(ctx context.Context, name string, query *Object, multi bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return 0, err
	}
	positions := FindAll(coll, query, s.index(name, coll))
	if !multi && len(positions) > 1 {
		positions = positions[:1]
	}
	if len(positions) == 0 {
		return 0, nil
	}
	kept := make(Collection, 0, len(coll)-len(positions))
	for pos, rec := range coll {
		if _, found := slices.BinarySearch(positions, pos); !found {
			kept = append(kept, rec)
		}
	}
	if err := s.persist(ctx, name, kept); err != nil {
		return 0, err
	}
	s.debugf("DELETE %s => %d records", name, len(positions))
	for _, pos := range positions {
		s.notify(name, OpDelete, coll[pos], nil)
	}
	return len(positions), nil
}

// Replace persists coll as the complete new content of the collection. It is
// not reported to OnChange handlers.
func (s *Store) Replace(ctx context.Context, name string, coll Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll = coll.Clone()
	for i, rec := range coll {
		if rec == nil {
			return opErrf("replace", "", nil, "nil record at position %d", i)
		}
		s.ensureID(rec)
		if err := s.validate(name, rec, coll, i); err != nil {
			return err
		}
	}
	return s.persist(ctx, name, coll)
}
