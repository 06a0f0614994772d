package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mwiater/docchat/internal/logging"
)

var embeddingsBucket = []byte("embeddings")

// CachedEmbedder memoizes vectors by content hash in a bbolt file so repeated
// chunks and queries skip the embedding service.
type CachedEmbedder struct {
	inner Embedder
	model string
	db    *bolt.DB

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder opens (or creates) the cache file at path.
func NewCachedEmbedder(inner Embedder, model, path string) (*CachedEmbedder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create embedding cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(embeddingsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, model: model, db: db}, nil
}

// Embed returns the cached vector for text, calling the wrapped embedder on a miss.
// Failed calls are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.key(text)

	var cached []float64
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(embeddingsBucket).Get(key)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &cached)
	})
	if err == nil && len(cached) > 0 {
		c.hits.Add(1)
		return cached, nil
	}
	if err != nil {
		logging.LogEvent("embedding cache read failed: %v", err)
	}

	c.misses.Add(1)
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(vec)
	if err == nil {
		err = c.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(embeddingsBucket).Put(key, raw)
		})
	}
	if err != nil {
		logging.LogEvent("embedding cache write failed: %v", err)
	}
	return vec, nil
}

// Stats reports cache hits and misses since the cache was opened.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the underlying cache file.
func (c *CachedEmbedder) Close() error {
	return c.db.Close()
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return []byte(hex.EncodeToString(sum[:]))
}
