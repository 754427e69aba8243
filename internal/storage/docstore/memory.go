package docstore

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/pkg/cmap"
)

// MemoryStore keeps documents in sharded concurrent maps, one per collection.
type MemoryStore struct {
	cols   *collections
	data   *cmap.Map[*cmap.Map[[]byte]]
	closed atomic.Bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(specs []domain.CollectionSpec) *MemoryStore {
	return &MemoryStore{
		cols: newCollections(specs),
		data: cmap.New[*cmap.Map[[]byte]](),
	}
}

func (s *MemoryStore) collection(name string) *cmap.Map[[]byte] {
	if c, ok := s.data.Get(name); ok {
		return c
	}
	c, _ := s.data.GetOrSet(name, cmap.New[[]byte]())
	return c
}

func (s *MemoryStore) check(ctx context.Context, collection string) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateCollection(collection)
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter) ([]domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}
	spec := s.cols.spec(collection)

	type entry struct {
		id  string
		doc domain.Document
	}
	var entries []entry
	var decodeErr error
	s.collection(collection).Range(func(id string, body []byte) bool {
		doc, err := domain.DecodeDocument(body)
		if err != nil {
			decodeErr = err
			return false
		}
		if matches(spec, doc, filter) {
			entries = append(entries, entry{id: id, doc: doc})
		}
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	docs := make([]domain.Document, len(entries))
	for i, e := range entries {
		docs[i] = e.doc
	}
	return docs, nil
}

// FindOne implements Store.
func (s *MemoryStore) FindOne(ctx context.Context, collection, id string) (domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}
	body, ok := s.collection(collection).Get(id)
	if !ok {
		return nil, domain.ErrDocumentNotFound.WithDetails(collection + "/" + id)
	}
	return domain.DecodeDocument(body)
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, collection string, doc domain.Document) (string, error) {
	if err := s.check(ctx, collection); err != nil {
		return "", err
	}
	id, body, _, err := prepareCreate(s.cols.spec(collection), doc)
	if err != nil {
		return "", err
	}
	if !s.collection(collection).SetIfAbsent(id, body) {
		return "", domain.ErrDocumentConflict.WithDetails(collection + "/" + id)
	}
	return id, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, collection, id string, doc domain.Document) error {
	if err := s.check(ctx, collection); err != nil {
		return err
	}
	body, _, err := prepareUpsert(s.cols.spec(collection), id, doc)
	if err != nil {
		return err
	}
	s.collection(collection).Set(id, body)
	return nil
}

// DeleteMany implements Store.
func (s *MemoryStore) DeleteMany(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}
	return s.collection(collection).Clear(), nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}
	return s.collection(collection).Count(), nil
}

// Engine implements Store.
func (s *MemoryStore) Engine() string { return EngineMemory }

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
