// Package exporter adapts a document store to the per-collection read and
// write operations the backup core needs.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/storage/docstore"
)

// Exporter exposes the tracked collections of a store.
type Exporter struct {
	store   docstore.Store
	tracked []domain.CollectionSpec
	byName  map[string]domain.CollectionSpec
}

// New creates an exporter over store for the given tracked collections.
func New(store docstore.Store, tracked []domain.CollectionSpec) (*Exporter, error) {
	e := &Exporter{
		store:  store,
		byName: make(map[string]domain.CollectionSpec, len(tracked)),
	}
	for _, spec := range tracked {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := e.byName[spec.Name]; dup {
			return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("collection %q tracked twice", spec.Name))
		}
		spec = spec.WithDefaults()
		e.byName[spec.Name] = spec
		e.tracked = append(e.tracked, spec)
	}
	return e, nil
}

// Tracked returns the tracked collection specs in configuration order.
func (e *Exporter) Tracked() []domain.CollectionSpec {
	out := make([]domain.CollectionSpec, len(e.tracked))
	copy(out, e.tracked)
	return out
}

// Collection returns the adapter for name. Untracked names get default
// field names so that restores of older snapshots still work.
func (e *Exporter) Collection(name string) *Collection {
	spec, ok := e.byName[name]
	if !ok {
		spec = domain.CollectionSpec{Name: name}.WithDefaults()
	}
	return &Collection{spec: spec, store: e.store}
}

// Collection is the backup view of a single collection.
type Collection struct {
	spec  domain.CollectionSpec
	store docstore.Store
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.spec.Name }

// Identity extracts the identity of doc.
func (c *Collection) Identity(doc domain.Document) (string, bool) {
	return doc.Identity(c.spec.IdentityField)
}

// ExportAll returns every document of the collection.
func (c *Collection) ExportAll(ctx context.Context) ([]domain.Document, error) {
	docs, err := c.store.Find(ctx, c.spec.Name, docstore.Filter{})
	if err != nil {
		return nil, domain.ErrExportFailed.WithDetails(c.spec.Name).WithCause(err)
	}
	return docs, nil
}

// ExportChangedSince returns documents modified at or after since, to the
// millisecond.
func (c *Collection) ExportChangedSince(ctx context.Context, since time.Time) ([]domain.Document, error) {
	docs, err := c.store.Find(ctx, c.spec.Name, docstore.Filter{ModifiedSince: &since})
	if err != nil {
		return nil, domain.ErrExportFailed.WithDetails(c.spec.Name).WithCause(err)
	}
	return docs, nil
}

// Exists reports whether a document with identity id is stored.
func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.store.FindOne(ctx, c.spec.Name, id)
	if err == nil {
		return true, nil
	}
	if domain.IsDomainError(err, domain.ErrDocumentNotFound.Code) {
		return false, nil
	}
	return false, err
}

// Insert creates doc.
func (c *Collection) Insert(ctx context.Context, doc domain.Document) error {
	_, err := c.store.Create(ctx, c.spec.Name, doc)
	return err
}

// Upsert stores doc under identity, replacing any existing document.
func (c *Collection) Upsert(ctx context.Context, identity string, doc domain.Document) error {
	return c.store.Upsert(ctx, c.spec.Name, identity, doc)
}

// DeleteAll removes every document of the collection.
func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	return c.store.DeleteMany(ctx, c.spec.Name)
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, c.spec.Name)
}
