// Package watch keeps custom components in sync with a directory of
// component files.
//
// Each file defines one component. A .js file holds source text and takes its
// key from the file name; a .yaml or .yml file holds the full definition:
//
//	key: pricing
//	name: Pricing table
//	category: marketing
//	default_config:
//	  plans: [Free, Pro]
//	code: |
//	  export default ({ plans = [] }) => h("ul", null, plans.map((p) => h("li", null, p)))
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/store"
)

// componentFile is the YAML form of one component.
type componentFile struct {
	Key           string                          `yaml:"key"`
	Name          string                          `yaml:"name,omitempty"`
	Description   string                          `yaml:"description,omitempty"`
	Category      string                          `yaml:"category,omitempty"`
	Schema        map[string]registry.FieldSchema `yaml:"schema,omitempty"`
	DefaultConfig map[string]any                  `yaml:"default_config,omitempty"`
	Code          string                          `yaml:"code"`
}

// Watcher reloads components when files in its directory change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	registry *registry.Registry
	store    store.Store // optional; receives every loaded source
	done     chan struct{}
	stopOnce sync.Once
	debug    bool

	mu    sync.Mutex
	files map[string]string // path -> key it defined
}

// New creates a watcher for dir. Call LoadAll to apply the files already
// present and Start to follow changes.
func New(dir string, reg *registry.Registry, st store.Store, debug bool) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if debug {
		log.Printf("[Watch] Added directory: %s", dir)
	}
	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		registry: reg,
		store:    st,
		done:     make(chan struct{}),
		debug:    debug,
		files:    make(map[string]string),
	}, nil
}

// IsComponentFile reports whether path has a component file extension.
func IsComponentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".yaml", ".yml":
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}

// ReadFile parses one component file.
func ReadFile(path string) (registry.CustomSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return registry.CustomSource{}, err
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if strings.EqualFold(filepath.Ext(path), ".js") {
		return registry.CustomSource{Key: stem, Code: string(data)}, nil
	}

	var f componentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return registry.CustomSource{}, fmt.Errorf("failed to parse %s: %w", base, err)
	}
	if f.Key == "" {
		f.Key = stem
	}
	return registry.CustomSource{
		Key:           f.Key,
		Name:          f.Name,
		Description:   f.Description,
		Category:      f.Category,
		Code:          f.Code,
		Schema:        f.Schema,
		DefaultConfig: f.DefaultConfig,
	}, nil
}

// LoadAll applies every component file in the directory. Files that fail to
// load are logged and skipped; the number of loaded components is returned.
func (w *Watcher) LoadAll(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[Watch] Failed to read %s: %v", w.dir, err)
		return 0
	}
	loaded := 0
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !IsComponentFile(path) {
			continue
		}
		if err := w.load(ctx, path); err != nil {
			log.Printf("[Watch] %v", err)
			continue
		}
		loaded++
	}
	return loaded
}

// load registers or updates the component defined by path.
func (w *Watcher) load(ctx context.Context, path string) error {
	src, err := ReadFile(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous, known := w.files[path]
	w.mu.Unlock()

	def, err := w.registry.PutCustom(src)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if known && previous != src.Key {
		w.remove(ctx, path, previous)
	}

	w.mu.Lock()
	w.files[path] = src.Key
	w.mu.Unlock()

	if w.store != nil {
		if err := w.store.SaveComponent(ctx, def.Source()); err != nil {
			return fmt.Errorf("failed to persist %s: %w", src.Key, err)
		}
	}
	log.Printf("[Watch] Loaded component %s from %s", src.Key, filepath.Base(path))
	return nil
}

// forget removes the component a deleted file defined.
func (w *Watcher) forget(ctx context.Context, path string) {
	w.mu.Lock()
	key, known := w.files[path]
	delete(w.files, path)
	w.mu.Unlock()
	if known {
		w.remove(ctx, path, key)
	}
}

func (w *Watcher) remove(ctx context.Context, path, key string) {
	if err := w.registry.RemoveCustom(key); err != nil && blockpress.CodeOf(err) != blockpress.CodeNotFound {
		log.Printf("[Watch] Failed to remove %s: %v", key, err)
		return
	}
	if w.store != nil {
		if err := w.store.DeleteComponent(ctx, key); err != nil && blockpress.CodeOf(err) != blockpress.CodeNotFound {
			log.Printf("[Watch] Failed to delete stored %s: %v", key, err)
		}
	}
	log.Printf("[Watch] Removed component %s (%s)", key, filepath.Base(path))
}

// Handle applies one file system event. It is exported for tests.
func (w *Watcher) Handle(ctx context.Context, event fsnotify.Event) {
	if !IsComponentFile(event.Name) {
		return
	}
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.forget(ctx, event.Name)
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if w.debug {
			log.Printf("[Watch] File changed: %s", filepath.Base(event.Name))
		}
		if err := w.load(ctx, event.Name); err != nil {
			log.Printf("[Watch] Reload failed: %v", err)
		}
	}
}

// Start begins watching for file changes.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.Handle(ctx, event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Watch] Error: %v", err)

			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
