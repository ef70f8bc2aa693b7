package filterfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuul-go/zuul/filters"
	"github.com/zuul-go/zuul/filters/filtertest"
	"github.com/zuul-go/zuul/loader"
)

const pollInterval = 10 * time.Millisecond

// metadataCompiler reads "kind order" from the source, anything else is a
// compile error.
type metadataCompiler struct{}

func (metadataCompiler) Compile(name string, source []byte) (filters.Filter, error) {
	var kind string
	var order int
	if _, err := fmt.Sscanf(string(source), "%s %d", &kind, &order); err != nil {
		return nil, errors.New("syntax error")
	}
	return &filtertest.Filter{FilterName: name, FilterKind: kind, FilterOrder: order}, nil
}

func writeFilter(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func startManager(t *testing.T, dirs ...string) (*Manager, *loader.Loader) {
	t.Helper()
	l := loader.New(metadataCompiler{}, loader.NewRegistry())
	m := Start(l, Options{Directories: dirs, PollInterval: pollInterval})
	t.Cleanup(m.Shutdown)
	return m, l
}

// eventually polls until the condition holds or two hundred poll intervals
// passed.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 200*pollInterval, pollInterval/2)
}

func namesOfKind(l *loader.Loader, kind string) []string {
	seq := l.FiltersByKind(kind)
	names := make([]string, len(seq))
	for i, f := range seq {
		names[i] = f.Name()
	}
	return names
}

func TestInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeFilter(t, dir, "a.lua", "pre 1")
	writeFilter(t, dir, "b.lua", "route 1")
	writeFilter(t, dir, "ignored.txt", "not a filter")

	_, l := startManager(t, dir)

	eventually(t, func() bool {
		return len(l.FiltersByKind("pre")) == 1 && len(l.FiltersByKind("route")) == 1
	})
	assert.Equal(t, []string{"a"}, namesOfKind(l, "pre"))
	assert.Equal(t, []string{"b"}, namesOfKind(l, "route"))
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	writeFilter(t, dir, "a.lua", "pre 1")

	_, l := startManager(t, dir)
	eventually(t, func() bool { return len(l.FiltersByKind("pre")) == 1 })
	old := l.FiltersByKind("pre")[0]

	// a moves to order 3, b appears at order 2
	writeFilter(t, dir, "a.lua", "pre 3")
	writeFilter(t, dir, "b.lua", "pre 2")

	eventually(t, func() bool {
		seq := l.FiltersByKind("pre")
		return len(seq) == 2 && seq[0].Name() == "b" && seq[1].Name() == "a"
	})

	seq := l.FiltersByKind("pre")
	assert.Equal(t, 2, seq[0].Order())
	assert.Equal(t, 3, seq[1].Order())
	assert.NotSame(t, old, seq[1])
}

func TestBadCompilePreservesOldInstance(t *testing.T) {
	dir := t.TempDir()
	writeFilter(t, dir, "good.lua", "pre 1")

	_, l := startManager(t, dir)
	eventually(t, func() bool { return len(l.FiltersByKind("pre")) == 1 })
	old := l.FiltersByKind("pre")[0]

	writeFilter(t, dir, "good.lua", "this is not a filter")

	// let a few polls pass, the previously compiled instance must survive
	time.Sleep(5 * pollInterval)
	seq := l.FiltersByKind("pre")
	require.Len(t, seq, 1)
	assert.Same(t, old, seq[0])
}

func TestFileRemoval(t *testing.T) {
	dir := t.TempDir()
	path := writeFilter(t, dir, "a.lua", "pre 1")
	writeFilter(t, dir, "b.lua", "pre 2")

	_, l := startManager(t, dir)
	eventually(t, func() bool { return len(l.FiltersByKind("pre")) == 2 })

	require.NoError(t, os.Remove(path))
	eventually(t, func() bool {
		seq := l.FiltersByKind("pre")
		return len(seq) == 1 && seq[0].Name() == "b"
	})
}

func TestMultipleDirectories(t *testing.T) {
	pre := t.TempDir()
	route := t.TempDir()
	writeFilter(t, pre, "a.lua", "pre 1")
	writeFilter(t, route, "b.lua", "route 1")

	_, l := startManager(t, pre, route)
	eventually(t, func() bool {
		return len(l.FiltersByKind("pre")) == 1 && len(l.FiltersByKind("route")) == 1
	})
}

func TestMissingDirectoryTolerated(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist-yet")
	writeFilter(t, dir, "a.lua", "pre 1")

	_, l := startManager(t, dir, missing)
	eventually(t, func() bool { return len(l.FiltersByKind("pre")) == 1 })

	// the directory appearing later is picked up
	require.NoError(t, os.Mkdir(missing, 0o755))
	writeFilter(t, missing, "late.lua", "post 9")
	eventually(t, func() bool { return len(l.FiltersByKind("post")) == 1 })
}

func TestNativeFiltersSurviveScans(t *testing.T) {
	dir := t.TempDir()
	l := loader.New(metadataCompiler{}, loader.NewRegistry())
	l.Register(&filtertest.Filter{FilterName: "sendResponse", FilterKind: "post", FilterOrder: 1000})

	m := Start(l, Options{Directories: []string{dir}, PollInterval: pollInterval})
	defer m.Shutdown()

	time.Sleep(5 * pollInterval)
	require.Len(t, l.FiltersByKind("post"), 1)
}

func TestShutdownStopsPolling(t *testing.T) {
	dir := t.TempDir()
	m, l := startManager(t, dir)
	m.Shutdown()

	writeFilter(t, dir, "late.lua", "pre 1")
	time.Sleep(5 * pollInterval)
	assert.Empty(t, l.FiltersByKind("pre"))

	// repeated shutdown is safe
	m.Shutdown()
}
