package service

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

// NormalizeMapName reduces a park file name such as "Volcano-economy.park"
// to its map name ("volcano"). Everything after the first "." and then the
// first "-" is dropped, so map names cannot contain hyphens.
func NormalizeMapName(name string) string {
	name, _, _ = strings.Cut(name, ".")
	name, _, _ = strings.Cut(name, "-")
	return strings.ToLower(name)
}

// NormalizeVote turns a chat vote into a map name prefix.
func NormalizeVote(input string) string {
	return strings.ReplaceAll(NormalizeMapName(input), " ", "_")
}

// MapCatalog lists the maps available for voting. Each sub-directory of the
// root is a map type (e.g. "economy", "sandbox") holding
// "<map>-<type>.park" files.
type MapCatalog struct {
	root string
	pick func(n int) int

	mu    sync.RWMutex
	lists map[string][]string
}

func NewMapCatalog(root string) *MapCatalog {
	return &MapCatalog{
		root:  root,
		pick:  rand.Intn,
		lists: make(map[string][]string),
	}
}

func (c *MapCatalog) Root() string {
	return c.root
}

// Refresh rescans the map directories.
func (c *MapCatalog) Refresh() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("read map root: %w", err)
	}

	lists := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		maps, err := c.scan(entry.Name())
		if err != nil {
			return err
		}
		lists[entry.Name()] = maps
	}

	c.mu.Lock()
	c.lists = lists
	c.mu.Unlock()

	total := 0
	for _, maps := range lists {
		total += len(maps)
	}
	log.Info().Int("types", len(lists)).Int("maps", total).Msg("map list refreshed")
	return nil
}

func (c *MapCatalog) scan(mapType string) ([]string, error) {
	files, err := os.ReadDir(filepath.Join(c.root, mapType))
	if err != nil {
		return nil, fmt.Errorf("read %s maps: %w", mapType, err)
	}
	seen := make(map[string]bool, len(files))
	maps := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := NormalizeMapName(f.Name())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		maps = append(maps, name)
	}
	sort.Strings(maps)
	return maps, nil
}

// Types returns the known map types, sorted.
func (c *MapCatalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.lists))
	for t := range c.lists {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (c *MapCatalog) HasType(mapType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lists[mapType]
	return ok
}

// Maps returns the map names of one type.
func (c *MapCatalog) Maps(mapType string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.lists[mapType]...)
}

// MapFile is the path of a map's park file.
func (c *MapCatalog) MapFile(mapType, name string) string {
	return filepath.Join(c.root, mapType, fmt.Sprintf("%s-%s.park", name, mapType))
}

// RandomFile picks any file of the given type.
func (c *MapCatalog) RandomFile(mapType string) (string, error) {
	if !c.HasType(mapType) {
		return "", apperrors.NotFound("Map type")
	}
	dir := filepath.Join(c.root, mapType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s maps: %w", mapType, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", apperrors.NotFound("Map")
	}
	return filepath.Join(dir, files[c.pick(len(files))]), nil
}

// Match resolves a vote to exactly one map of the given type by prefix.
func (c *MapCatalog) Match(mapType, input string) (string, error) {
	prefix := NormalizeVote(input)
	if prefix == "" {
		return "", apperrors.NoSuchMap("")
	}

	var matches []string
	for _, m := range c.Maps(mapType) {
		if strings.HasPrefix(m, prefix) {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", apperrors.NoSuchMap(prefix)
	default:
		return "", apperrors.AmbiguousVote(matches)
	}
}

// SetLists replaces the catalog contents without touching the filesystem.
func (c *MapCatalog) SetLists(lists map[string][]string) {
	c.mu.Lock()
	c.lists = lists
	c.mu.Unlock()
}
