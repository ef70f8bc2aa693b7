// Package loader compiles filter sources on demand, caches them by content
// digest and serves per-kind ordered filter sequences to the request path.
package loader

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/zuul-go/zuul/filters"
)

// Compiler turns a source blob into an executable filter instance. The
// loader never inspects the compiled object beyond the filter contract.
type Compiler interface {
	Compile(name string, source []byte) (filters.Filter, error)
}

// Loader keeps the last compiled digest per source path and the derived
// per-kind sequences. Writes happen from the file manager's poller, reads
// from request workers. The per-kind sequences are published atomically as
// an immutable snapshot: a reader that obtained a sequence keeps iterating
// it regardless of concurrent mutations.
type Loader struct {
	compiler Compiler
	registry *Registry

	mu           sync.Mutex
	hashByPath   map[string]uint64
	filterByPath map[string]filters.Filter

	sequences atomic.Pointer[map[string][]filters.Filter]
}

// New creates a loader on top of a compiler and a registry.
func New(c Compiler, r *Registry) *Loader {
	return &Loader{
		compiler:     c,
		registry:     r,
		hashByPath:   make(map[string]uint64),
		filterByPath: make(map[string]filters.Filter),
	}
}

// FilterName derives the registry name from a source path: the file base
// without its extension.
func FilterName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GetOrCreate returns the filter compiled from path. When the source digest
// matches the last compiled one, the cached instance is returned without
// recompilation. On compile failure the previous instance stays in place
// and a *filters.ConfigError is returned alongside it.
func (l *Loader) GetOrCreate(path string, source []byte) (filters.Filter, error) {
	digest := xxhash.Sum64(source)

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.hashByPath[path]; ok && h == digest {
		return l.filterByPath[path], nil
	}

	name := FilterName(path)
	f, err := l.compiler.Compile(name, source)
	if err != nil {
		cerr := &filters.ConfigError{Source: path, Err: err}
		log.Error(cerr)
		return l.filterByPath[path], cerr
	}

	old := l.filterByPath[path]
	l.hashByPath[path] = digest
	l.filterByPath[path] = f
	l.registry.Put(name, f)

	l.invalidate()
	if old != nil && old.Kind() != f.Kind() {
		log.Infof("filter %s changed kind from %s to %s", name, old.Kind(), f.Kind())
	}

	return f, nil
}

// Register inserts a natively constructed filter, keyed by its name. Used
// for the built in filters that are not backed by a source file.
func (l *Loader) Register(f filters.Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.filterByPath[f.Name()] = f
	l.registry.Put(f.Name(), f)
	l.invalidate()
}

// Remove drops the filter compiled from path, typically after its source
// file disappeared.
func (l *Loader) Remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.filterByPath[path]
	if !ok {
		return
	}

	delete(l.filterByPath, path)
	delete(l.hashByPath, path)
	l.registry.Remove(FilterName(path))
	l.invalidate()
	log.Infof("removed filter %s of kind %s", FilterName(path), f.Kind())
}

// Paths returns the currently loaded source paths.
func (l *Loader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, 0, len(l.filterByPath))
	for p := range l.filterByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FiltersByKind returns the filters of a kind sorted ascending by
// (order, name). The returned slice is immutable, callers iterate it as
// their per-stage snapshot.
func (l *Loader) FiltersByKind(kind string) []filters.Filter {
	if seqs := l.sequences.Load(); seqs != nil {
		return (*seqs)[kind]
	}
	return l.rebuild()[kind]
}

// invalidate drops the published sequences, the next reader rebuilds them.
// Callers hold l.mu.
func (l *Loader) invalidate() { l.sequences.Store(nil) }

func (l *Loader) rebuild() map[string][]filters.Filter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seqs := l.sequences.Load(); seqs != nil {
		return *seqs
	}

	byKind := make(map[string][]filters.Filter)
	for _, f := range l.filterByPath {
		byKind[f.Kind()] = append(byKind[f.Kind()], f)
	}
	for _, seq := range byKind {
		sort.Slice(seq, func(i, j int) bool {
			if seq[i].Order() != seq[j].Order() {
				return seq[i].Order() < seq[j].Order()
			}
			return seq[i].Name() < seq[j].Name()
		})
	}

	l.sequences.Store(&byKind)
	return byKind
}
