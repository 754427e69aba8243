package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// Engine names accepted by Open.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
	EngineSQLite = "sqlite"
)

// Filter narrows a Find call.
type Filter struct {
	// ModifiedSince keeps only documents whose modified field is at or
	// after the given instant, compared at millisecond precision. Documents without a modified field are
	// excluded when the filter is set.
	ModifiedSince *time.Time
}

// Store is a collection-oriented document store.
type Store interface {
	// Find returns every document of a collection matching the filter,
	// ordered by identity.
	Find(ctx context.Context, collection string, filter Filter) ([]domain.Document, error)

	// FindOne returns the document with the given identity or
	// domain.ErrDocumentNotFound.
	FindOne(ctx context.Context, collection, id string) (domain.Document, error)

	// Create inserts a new document. A ULID identity is assigned when the
	// document has none. Fails with domain.ErrDocumentConflict if the
	// identity is taken.
	Create(ctx context.Context, collection string, doc domain.Document) (string, error)

	// Upsert stores the document under id, replacing any existing one.
	Upsert(ctx context.Context, collection, id string, doc domain.Document) error

	// DeleteMany removes every document of a collection.
	DeleteMany(ctx context.Context, collection string) (int, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Engine returns the engine name.
	Engine() string

	// Close releases the underlying resources.
	Close() error
}

// collections resolves per-collection field names. Collections that were
// not configured use the default identity and modified fields.
type collections struct {
	mu    sync.RWMutex
	specs map[string]domain.CollectionSpec
}

func newCollections(specs []domain.CollectionSpec) *collections {
	c := &collections{specs: make(map[string]domain.CollectionSpec, len(specs))}
	for _, s := range specs {
		c.specs[s.Name] = s.WithDefaults()
	}
	return c
}

func (c *collections) spec(name string) domain.CollectionSpec {
	c.mu.RLock()
	s, ok := c.specs[name]
	c.mu.RUnlock()
	if ok {
		return s
	}
	return domain.CollectionSpec{Name: name}.WithDefaults()
}

func validateCollection(name string) error {
	if name == "" {
		return domain.ErrInvalidArgument.WithDetails("collection name is empty")
	}
	return nil
}

// prepareCreate resolves or assigns the identity of a new document and
// returns the encoded body with its modified time.
func prepareCreate(spec domain.CollectionSpec, doc domain.Document) (string, []byte, *time.Time, error) {
	if doc == nil {
		return "", nil, nil, domain.ErrInvalidArgument.WithDetails("document is nil")
	}
	id, ok := doc.Identity(spec.IdentityField)
	if !ok {
		if v, present := doc[spec.IdentityField]; present && v != nil {
			return "", nil, nil, domain.ErrDocumentIdentity.WithDetails(fmt.Sprintf("unsupported %s value %T", spec.IdentityField, v))
		}
		id = ulid.Make().String()
		doc = doc.Clone()
		doc[spec.IdentityField] = id
	}
	body, modified, err := encode(spec, doc)
	return id, body, modified, err
}

// prepareUpsert writes id into the identity field when it is missing.
func prepareUpsert(spec domain.CollectionSpec, id string, doc domain.Document) ([]byte, *time.Time, error) {
	if id == "" {
		return nil, nil, domain.ErrDocumentIdentity.WithDetails("empty identity")
	}
	if doc == nil {
		return nil, nil, domain.ErrInvalidArgument.WithDetails("document is nil")
	}
	if _, ok := doc.Identity(spec.IdentityField); !ok {
		doc = doc.Clone()
		doc[spec.IdentityField] = id
	}
	return encode(spec, doc)
}

func encode(spec domain.CollectionSpec, doc domain.Document) ([]byte, *time.Time, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}
	var modified *time.Time
	if ts, ok := doc.ModifiedAt(spec.ModifiedField); ok {
		modified = &ts
	}
	return body, modified, nil
}

// matches reports whether a stored body passes the filter.
func matches(spec domain.CollectionSpec, doc domain.Document, filter Filter) bool {
	if filter.ModifiedSince == nil {
		return true
	}
	ts, ok := doc.ModifiedAt(spec.ModifiedField)
	if !ok {
		return false
	}
	return !ts.Truncate(time.Millisecond).Before(filter.ModifiedSince.Truncate(time.Millisecond))
}
