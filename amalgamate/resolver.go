package amalgamate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver returns the text of a file named by a quoted include.
type Resolver interface {
	Resolve(name string) (string, error)
}

// MapResolver serves files from memory.
type MapResolver map[string]string

func (m MapResolver) Resolve(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", fmt.Errorf("resolving %s: %w", name, fs.ErrNotExist)
	}

	return text, nil
}

// DirResolver reads files relative to Dir.
type DirResolver struct {
	Dir string
}

func (d DirResolver) Resolve(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Dir, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}

	return string(data), nil
}

// CachingResolver keeps the most recently resolved files in memory.
type CachingResolver struct {
	next  Resolver
	cache *lru.Cache[string, string]
}

func NewCachingResolver(next Resolver, size int) (*CachingResolver, error) {
	if size <= 0 {
		size = 128
	}

	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating resolver cache: %w", err)
	}

	return &CachingResolver{
		next:  next,
		cache: cache,
	}, nil
}

func (c *CachingResolver) Resolve(name string) (string, error) {
	if text, ok := c.cache.Get(name); ok {
		return text, nil
	}

	text, err := c.next.Resolve(name)
	if err != nil {
		return "", err
	}
	c.cache.Add(name, text)

	return text, nil
}

// Len reports how many files are cached.
func (c *CachingResolver) Len() int {
	return c.cache.Len()
}
