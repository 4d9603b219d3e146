// Package blob is a small object store on badger. Objects expire after a
// fixed TTL and are addressed by a temporary URL served by the HTTP API.
package blob

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-demand-service/internal/domain"
)

const (
	dataPrefix = "data:"
	metaPrefix = "meta:"

	// RoutePrefix is where the HTTP API serves stored objects.
	RoutePrefix = "/api/v1/blobs/"
)

// ErrNotFound is returned for missing or expired objects.
var ErrNotFound = errors.New("blob not found")

type meta struct {
	FileID      string    `json:"file_id"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Object is a stored payload with its content type.
type Object struct {
	Data        []byte
	ContentType string
	FileID      string
}

// Store keeps objects in badger.
type Store struct {
	db      *badger.DB
	ttl     time.Duration
	baseURL string
	clock   clockwork.Clock
	logger  *slog.Logger
}

// Options configure a Store.
type Options struct {
	// Dir is the badger directory; empty keeps everything in memory.
	Dir     string
	TTL     time.Duration
	BaseURL string
	Clock   clockwork.Clock
}

// Open opens or creates the store.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Store{
		db:      db,
		ttl:     opts.TTL,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		clock:   clk,
		logger:  logger,
	}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under key, replacing any previous object, and returns a
// handle whose URL stays valid until the TTL elapses.
func (s *Store) Put(key string, data []byte, contentType string) (domain.BlobHandle, error) {
	if key == "" || strings.Contains(key, "..") {
		return domain.BlobHandle{}, fmt.Errorf("invalid blob key %q", key)
	}
	m := meta{FileID: uuid.NewString(), ContentType: contentType, CreatedAt: s.clock.Now().UTC()}
	mb, err := json.Marshal(m)
	if err != nil {
		return domain.BlobHandle{}, fmt.Errorf("marshal blob meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(s.entry(dataPrefix+key, data)); err != nil {
			return fmt.Errorf("set blob data: %w", err)
		}
		if err := txn.SetEntry(s.entry(metaPrefix+key, mb)); err != nil {
			return fmt.Errorf("set blob meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.BlobHandle{}, err
	}

	s.logger.Debug("blob stored", "key", key, "bytes", len(data), "file_id", m.FileID)
	h := domain.BlobHandle{
		Key:    key,
		FileID: m.FileID,
		URL:    s.baseURL + RoutePrefix + escapeKey(key),
		Size:   len(data),
	}
	if s.ttl > 0 {
		h.ExpiresAt = m.CreatedAt.Add(s.ttl)
	}
	return h, nil
}

func (s *Store) entry(key string, value []byte) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

// Get returns the object stored under key.
func (s *Store) Get(key string) (Object, error) {
	var obj Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get blob meta: %w", err)
		}
		var m meta
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
			return fmt.Errorf("decode blob meta: %w", err)
		}

		item, err = txn.Get([]byte(dataPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get blob data: %w", err)
		}
		obj.Data, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read blob data: %w", err)
		}
		obj.ContentType = m.ContentType
		obj.FileID = m.FileID
		return nil
	})
	return obj, err
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataPrefix + key)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + key))
	})
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
