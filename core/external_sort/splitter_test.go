package externalsort

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestChunkCount(t *testing.T) {
	require.Equal(t, 0, chunkCount(0, 3))
	require.Equal(t, 1, chunkCount(1, 3))
	require.Equal(t, 1, chunkCount(3, 3))
	require.Equal(t, 2, chunkCount(4, 3))
	require.Equal(t, 4, chunkCount(10, 3))
}

func TestSplit_CopiesPagesVerbatim(t *testing.T) {
	cases := []struct {
		name        string
		records     int
		budget      int
		wantRecords []int
	}{
		{"partial last page", 30, 3, []int{24, 6}},
		{"full last page", 48, 3, []int{24, 24}},
		{"single page", 5, 3, []int{5}},
		{"exact pages", 16, 4, []int{16}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := setupSorter(t)
			input := randomRecords(3, c.records, 1000)
			path := env.writeFile(t, "in.db", input)
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			area, err := newScratchArea(env.scratch, zaptest.NewLogger(t))
			require.NoError(t, err)
			sl := newSlots(env.files.BufferPool(), c.budget)

			runs, err := env.sorter.split(context.Background(), path, c.budget, area, sl)
			require.NoError(t, err)
			require.Len(t, runs, len(c.wantRecords))
			require.Zero(t, sl.Held())

			var concatenated []byte
			next := 0
			for i, r := range runs {
				require.Equal(t, c.wantRecords[i], r.records)
				got, md := env.readFile(t, r.path)
				require.EqualValues(t, r.records, md.RecordCount)
				require.Equal(t, input[next:next+r.records], got)
				next += r.records

				raw, err := os.ReadFile(r.path)
				require.NoError(t, err)
				concatenated = append(concatenated, raw[env.files.BufferPool().PageSize():]...)
			}
			// Data pages of all chunks, in order, are exactly the input's data pages.
			require.Equal(t, before[env.files.BufferPool().PageSize():], concatenated)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, before, after)

			require.NoError(t, area.Release())
			env.requireScratchEmpty(t)
		})
	}
}
