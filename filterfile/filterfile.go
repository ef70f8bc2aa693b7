// Package filterfile keeps the live filter set consistent with a set of
// watched directories. A single background poller enumerates the
// directories on an interval, feeds new and changed sources to the loader
// and removes filters whose files disappeared.
package filterfile

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zuul-go/zuul/loader"
)

// DefaultPollInterval is used when Options.PollInterval is unset.
const DefaultPollInterval = 5 * time.Second

// DefaultSuffix is the source file predicate used when Options.Suffix is
// unset.
const DefaultSuffix = ".lua"

// Options configures the file manager.
type Options struct {
	// Directories to scan. Non existing directories are tolerated and
	// logged, they may appear later.
	Directories []string

	// PollInterval between scans, default 5s.
	PollInterval time.Duration

	// Suffix of eligible source files, default ".lua".
	Suffix string
}

// Manager is the background scanner. Exactly one poller goroutine runs per
// manager, communication with request workers happens only through the
// loader's atomic publication.
type Manager struct {
	loader *loader.Loader
	opts   Options

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Start creates a manager and spawns its poller. The first scan runs
// immediately so the initial filter set is available before the first
// interval elapses.
func Start(l *loader.Loader, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}

	m := &Manager{
		loader: l,
		opts:   opts,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go m.poll()
	return m
}

// Shutdown signals the poller to stop and waits for it to exit. Safe to
// call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.quit) })
	<-m.done
}

func (m *Manager) poll() {
	defer close(m.done)

	m.scan()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scan()
		case <-m.quit:
			return
		}
	}
}

// scan walks all configured directories once. One bad file or directory
// never stops the scan.
func (m *Manager) scan() {
	seen := make(map[string]bool)
	for _, dir := range m.opts.Directories {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Errorf("failed to scan filter directory %s: %v", dir, err)
			continue
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), m.opts.Suffix) {
				continue
			}

			path := filepath.Join(dir, e.Name())
			source, err := os.ReadFile(path)
			if err != nil {
				log.Errorf("failed to read filter source %s: %v", path, err)
				continue
			}

			seen[path] = true
			// compile errors are already logged by the loader, the
			// previous instance stays in place
			m.loader.GetOrCreate(path, source)
		}
	}

	for _, path := range m.loader.Paths() {
		if !seen[path] && strings.HasSuffix(path, m.opts.Suffix) {
			m.loader.Remove(path)
		}
	}
}
