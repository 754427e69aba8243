package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Default field names used when a collection does not override them.
const (
	DefaultIdentityField = "_id"
	DefaultModifiedField = "updatedAt"
)

// Document is a schema-less record. Values decoded from JSON keep numbers
// as json.Number so that integers survive a round trip unchanged.
type Document map[string]any

// CollectionSpec describes how a tracked collection exposes identity and
// last-modified time.
type CollectionSpec struct {
	Name          string `koanf:"name" json:"name"`
	IdentityField string `koanf:"identity_field" json:"identity_field,omitempty"`
	ModifiedField string `koanf:"modified_field" json:"modified_field,omitempty"`
}

// WithDefaults returns a copy with empty field names replaced by defaults.
func (c CollectionSpec) WithDefaults() CollectionSpec {
	if c.IdentityField == "" {
		c.IdentityField = DefaultIdentityField
	}
	if c.ModifiedField == "" {
		c.ModifiedField = DefaultModifiedField
	}
	return c
}

// Validate checks the collection name is usable as a store key and a
// snapshot filename prefix.
func (c CollectionSpec) Validate() error {
	if c.Name == "" {
		return ErrInvalidArgument.WithDetails("collection name is empty")
	}
	if c.Name == "full" || c.Name == "incremental" {
		return ErrInvalidArgument.WithDetails(fmt.Sprintf("collection name %q is reserved", c.Name))
	}
	if strings.ContainsAny(c.Name, "/\\. ") || strings.Contains(c.Name, "_backup_") {
		return ErrInvalidArgument.WithDetails(fmt.Sprintf("collection name %q has forbidden characters", c.Name))
	}
	return nil
}

// Identity returns the document identity as a string.
// Numeric identities are rendered in their JSON form.
func (d Document) Identity(field string) (string, bool) {
	v, ok := d[field]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10), true
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case fmt.Stringer:
		s := id.String()
		return s, s != ""
	default:
		return "", false
	}
}

// ModifiedAt returns the document's last-modified time.
// Accepted encodings: RFC 3339 strings, epoch milliseconds and time.Time.
func (d Document) ModifiedAt(field string) (time.Time, bool) {
	v, ok := d[field]
	if !ok || v == nil {
		return time.Time{}, false
	}
	return ParseTimestamp(v)
}

// ParseTimestamp converts a decoded JSON value into a time.
func ParseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, !ts.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case json.Number:
		ms, err := ts.Int64()
		if err != nil {
			f, ferr := ts.Float64()
			if ferr != nil {
				return time.Time{}, false
			}
			if !inInt64Range(f) {
				return time.Time{}, false
			}
			ms = int64(f)
		}
		return time.UnixMilli(ms), true
	case float64:
		if !inInt64Range(ts) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ts)), true
	case int64:
		return time.UnixMilli(ts), true
	case int:
		return time.UnixMilli(int64(ts)), true
	default:
		return time.Time{}, false
	}
}

// inInt64Range reports whether f converts to int64 without overflow.
// NaN fails both comparisons.
func inInt64Range(f float64) bool {
	return f >= -9.223372036854775808e18 && f < 9.223372036854775808e18
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// DecodeDocument parses a JSON object, keeping numbers as json.Number.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}
