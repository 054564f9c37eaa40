package tsl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Cache stores downloaded trusted lists by location.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// InMemoryCache is a Cache without expiry.
type InMemoryCache struct {
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{cache: make(map[string][]byte)}
}

func (c *InMemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.cache[key]
	return value, ok
}

func (c *InMemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = value
}

const indexFile = "index.json"

// FileSystemCache keeps trusted lists in a directory so that a restarted
// service can start without the network. Entries expire after a fixed age.
type FileSystemCache struct {
	mu          sync.RWMutex
	root        string
	expireAfter time.Duration
	clock       clockwork.Clock
	index       map[string]cacheEntry
}

type cacheEntry struct {
	ExpEpochSeconds int64  `json:"exp_epoch_seconds"`
	Fname           string `json:"fname"`
}

// NewFileSystemCache opens or creates a cache rooted at cachePath. A nil
// clock uses the real clock.
func NewFileSystemCache(cachePath string, expireAfter time.Duration, clock clockwork.Clock) (*FileSystemCache, error) {
	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	cache := &FileSystemCache{
		root:        cachePath,
		expireAfter: expireAfter,
		clock:       clock,
		index:       make(map[string]cacheEntry),
	}

	if data, err := os.ReadFile(filepath.Join(cachePath, indexFile)); err == nil {
		if err := json.Unmarshal(data, &cache.index); err != nil {
			log.Warnf("Trusted list cache index %s is corrupted, starting empty: %v", cachePath, err)
			cache.index = make(map[string]cacheEntry)
		}
	}
	return cache, nil
}

func (c *FileSystemCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Unix() > entry.ExpEpochSeconds {
		return nil, false
	}
	content, err := os.ReadFile(filepath.Join(c.root, entry.Fname))
	if err != nil {
		return nil, false
	}
	return content, true
}

func (c *FileSystemCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := sha256.Sum256([]byte(key))
	fname := hex.EncodeToString(hash[:])

	if err := os.WriteFile(filepath.Join(c.root, fname), value, 0o644); err != nil {
		log.Errorf("Failed to write trusted list cache entry for %s: %v", key, err)
		return
	}
	c.index[key] = cacheEntry{
		ExpEpochSeconds: c.clock.Now().Add(c.expireAfter).Unix(),
		Fname:           fname,
	}
	indexData, err := json.Marshal(c.index)
	if err != nil {
		log.Errorf("Failed to encode trusted list cache index: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.root, indexFile), indexData, 0o644); err != nil {
		log.Errorf("Failed to write trusted list cache index: %v", err)
	}
}

// Reset removes every cached list.
func (c *FileSystemCache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(c.root, entry.Name())); err != nil {
			return err
		}
	}
	c.index = make(map[string]cacheEntry)
	return nil
}
