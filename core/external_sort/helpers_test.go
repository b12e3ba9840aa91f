package externalsort

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	recordfile "github.com/sushant-115/gojosort/core/record_file"
	bufferpool "github.com/sushant-115/gojosort/core/storage_engine/buffer_pool"
	"go.uber.org/zap/zaptest"
)

// testPoolSize is also the largest buffer budget the tests' sorter accepts.
const testPoolSize = 10

type testEnv struct {
	files   *recordfile.Manager
	sorter  *Sorter
	dir     string
	scratch string
}

// setupSorter builds a buffer pool, record manager and sorter over a temp dir.
func setupSorter(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bpm, err := bufferpool.NewBufferPoolManager(testPoolSize, bufferpool.DefaultPageSize, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bpm.Close() })

	files, err := recordfile.NewManager(bpm, logger)
	require.NoError(t, err)

	dir := t.TempDir()
	scratch := filepath.Join(dir, "scratch")
	require.NoError(t, os.Mkdir(scratch, 0o755))

	sorter, err := NewSorter(files, Options{ScratchRoot: scratch}, logger)
	require.NoError(t, err)
	return &testEnv{files: files, sorter: sorter, dir: dir, scratch: scratch}
}

func (e *testEnv) path(name string) string { return filepath.Join(e.dir, name) }

// writeFile creates a record file holding recs in order.
func (e *testEnv) writeFile(t *testing.T, name string, recs []recordfile.Record) string {
	t.Helper()
	path := e.path(name)
	require.NoError(t, e.files.CreateFile(path))
	f, err := e.files.OpenFile(path)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, e.files.InsertEntry(f, rec))
	}
	require.NoError(t, e.files.CloseFile(f))
	return path
}

func (e *testEnv) readFile(t *testing.T, path string) ([]recordfile.Record, recordfile.Metadata) {
	t.Helper()
	f, err := e.files.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, e.files.CloseFile(f)) }()
	md, err := e.files.Metadata(f)
	require.NoError(t, err)
	recs, err := e.files.ReadAll(f)
	require.NoError(t, err)
	return recs, md
}

func (e *testEnv) requireScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.scratch)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch root must be left empty")
}

var (
	firstNames = []string{"Anna", "Bob", "Chris", "Dora", "Eli", "Fay", "Gus"}
	lastNames  = []string{"Smith", "Jones", "Brown", "Taylor", "Wilson", "Evans"}
	cities     = []string{"Athens", "Berlin", "Cairo", "Dublin", "Oslo"}
)

// randomRecords returns n records with ids drawn from [0, idRange).
func randomRecords(seed int64, n, idRange int) []recordfile.Record {
	rng := rand.New(rand.NewSource(seed))
	recs := make([]recordfile.Record, n)
	for i := range recs {
		recs[i] = recordfile.Record{
			ID:      int32(rng.Intn(idRange)),
			Name:    firstNames[rng.Intn(len(firstNames))],
			Surname: fmt.Sprintf("%s%d", lastNames[rng.Intn(len(lastNames))], i%7),
			City:    cities[rng.Intn(len(cities))],
		}
	}
	return recs
}

// distinctRecords returns n records with the distinct ids 0..n-1 in shuffled order.
func distinctRecords(seed int64, n int) []recordfile.Record {
	rng := rand.New(rand.NewSource(seed))
	recs := make([]recordfile.Record, n)
	for i, id := range rng.Perm(n) {
		recs[i] = recordfile.Record{
			ID:      int32(id),
			Name:    fmt.Sprintf("n%05d", id),
			Surname: fmt.Sprintf("s%05d", id),
			City:    fmt.Sprintf("c%05d", id),
		}
	}
	return recs
}

func requireSorted(t *testing.T, recs []recordfile.Record, field FieldNo) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		require.True(t, LessOrEqual(&recs[i-1], &recs[i], field),
			"records %d and %d out of order by %s: %v / %v", i-1, i, field, recs[i-1], recs[i])
	}
}

// requireSameMultiset checks got is a permutation of want.
func requireSameMultiset(t *testing.T, want, got []recordfile.Record) {
	t.Helper()
	require.Len(t, got, len(want))
	counts := make(map[recordfile.Record]int, len(want))
	for _, rec := range want {
		counts[rec]++
	}
	for _, rec := range got {
		counts[rec]--
	}
	for rec, n := range counts {
		require.Zero(t, n, "record %v count differs", rec)
	}
}
