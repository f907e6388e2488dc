// Package journal keeps a short on-disk record of finished resume attempts.
package journal

import (
	"sync"

	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/where"
	"github.com/metafates/gache"
	"github.com/samber/lo"
)

// Capacity is how many entries are retained, oldest dropped first.
const Capacity = 50

var (
	mu     sync.Mutex
	cacher *gache.Cache[[]Entry]
)

func store() *gache.Cache[[]Entry] {
	if cacher == nil {
		cacher = gache.New[[]Entry](&gache.Options{
			Path:       where.Journal(),
			FileSystem: &filesystem.GacheFs{},
		})
	}
	return cacher
}

// Get returns the recorded entries, oldest first.
func Get() ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()
	return getLocked()
}

func getLocked() ([]Entry, error) {
	cached, expired, err := store().Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return []Entry{}, nil
	}
	return cached, nil
}

// Record appends the outcome, trimming to Capacity.
func Record(o continuity.Outcome) error {
	mu.Lock()
	defer mu.Unlock()

	entries, err := getLocked()
	if err != nil {
		return err
	}

	entries = append(entries, newEntry(o))
	if len(entries) > Capacity {
		entries = entries[len(entries)-Capacity:]
	}
	return store().Set(entries)
}

// Last returns up to n most recent entries, newest first.
func Last(n int) ([]Entry, error) {
	entries, err := Get()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return lo.Reverse(append([]Entry(nil), entries...)), nil
}

// Clear drops every recorded entry.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()
	return store().Set([]Entry{})
}
