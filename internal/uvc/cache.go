// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	xlog "github.com/ManuGH/bigeye/internal/log"
)

// Cache memoizes an Enumerator. Entries are dropped whenever a watched device node
// appears or disappears; the cache is never authoritative and can always be rebuilt.
// Once the watcher cannot run, every Enumerate goes to the source.
type Cache struct {
	src    Enumerator
	dir    string
	prefix string

	mu      sync.Mutex
	devices []DeviceDescriptor
	valid   bool
	gen     uint64
	bypass  bool
}

// NewCache wraps src. Nodes in dir whose base name starts with prefix invalidate
// the cache.
func NewCache(src Enumerator, dir, prefix string) *Cache {
	return &Cache{src: src, dir: dir, prefix: prefix}
}

// Enumerate returns the cached enumeration or refreshes it from the source.
func (c *Cache) Enumerate(ctx context.Context) ([]DeviceDescriptor, error) {
	c.mu.Lock()
	if c.bypass {
		c.mu.Unlock()
		return c.src.Enumerate(ctx)
	}
	if c.valid {
		out := append([]DeviceDescriptor(nil), c.devices...)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	devices, err := c.src.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// An invalidation raced the refresh; serve the result without caching it.
	if gen == c.gen && !c.bypass {
		c.devices = append([]DeviceDescriptor(nil), devices...)
		c.valid = true
	}
	c.mu.Unlock()
	return devices, nil
}

// Invalidate forces the next Enumerate to query the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.devices = nil
	c.gen++
	c.mu.Unlock()
}

// disable stops caching for good.
func (c *Cache) disable() {
	c.mu.Lock()
	c.bypass = true
	c.valid = false
	c.devices = nil
	c.gen++
	c.mu.Unlock()
}

// Watch invalidates the cache on hotplug events until ctx is done. If the
// watcher cannot be set up or stops early, caching is turned off.
func (c *Cache) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		c.disable()
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(c.dir); err != nil {
		c.disable()
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	logger := xlog.WithComponent("uvc")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				c.disable()
				return nil
			}
			if !c.relevant(ev) {
				continue
			}
			c.Invalidate()
			logger.Debug().
				Str(xlog.FieldEvent, "uvc.hotplug").
				Str(xlog.FieldDevPath, ev.Name).
				Str("op", ev.Op.String()).
				Msg("device set changed, enumeration cache invalidated")
		case err, ok := <-w.Errors:
			if !ok {
				c.disable()
				return nil
			}
			// Events may have been lost.
			c.Invalidate()
			logger.Warn().Err(err).Str(xlog.FieldEvent, "uvc.watch_error").Msg("device watcher error")
		}
	}
}

func (c *Cache) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), c.prefix)
}
