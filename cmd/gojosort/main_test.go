package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupConfig writes a config that keeps logs and scratch files inside the test dir.
func setupConfig(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	scratch := filepath.Join(dir, "scratch")
	require.NoError(t, os.Mkdir(scratch, 0o755))
	cfgPath = filepath.Join(dir, "gojosort.yaml")
	body := fmt.Sprintf(`
storage:
  buffer_pool_pages: 12
sort:
  scratch_root: %s
  buffer_budget: 4
logger:
  level: debug
  output_file: %s
`, scratch, filepath.Join(dir, "gojosort.log"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return dir, cfgPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRun_GenerateSortPrint(t *testing.T) {
	dir, cfg := setupConfig(t)
	in := filepath.Join(dir, "people.db")
	sorted := filepath.Join(dir, "people.sorted.db")

	out, err := runCmd(t, "--config", cfg, "generate", in, "--count", "250", "--seed", "42")
	require.NoError(t, err)
	require.Contains(t, out, "250 records")

	out, err = runCmd(t, "--config", cfg, "sort", in, sorted, "--field", "surname")
	require.NoError(t, err)
	require.Contains(t, out, "sorted "+in+" by surname")

	out, err = runCmd(t, "--config", cfg, "print", sorted)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 250)

	surnames := make([]string, len(lines))
	for i, line := range lines {
		idx := strings.Index(line, "Surname: ")
		require.GreaterOrEqual(t, idx, 0, line)
		surnames[i] = strings.Fields(line[idx+len("Surname: "):])[0]
	}
	for i := 1; i < len(surnames); i++ {
		require.LessOrEqual(t, surnames[i-1], surnames[i])
	}

	entries, err := os.ReadDir(filepath.Join(dir, "scratch"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_InsertAndPrint(t *testing.T) {
	dir, cfg := setupConfig(t)
	path := filepath.Join(dir, "one.db")

	_, err := runCmd(t, "-c", cfg, "insert", path, "--create", "--id", "7", "--name", "Maria", "--surname", "Ioannou", "--city", "Volos")
	require.NoError(t, err)
	_, err = runCmd(t, "-c", cfg, "insert", path, "--id", "3", "--name", "Nikos", "--surname", "Pappas", "--city", "Patra")
	require.NoError(t, err)

	out, err := runCmd(t, "-c", cfg, "print", path)
	require.NoError(t, err)
	require.Equal(t,
		"Id: 7     Name: Maria           Surname: Ioannou              City: Volos               \n"+
			"Id: 3     Name: Nikos           Surname: Pappas               City: Patra               \n",
		out)
}

func TestRun_UsageErrors(t *testing.T) {
	dir, cfg := setupConfig(t)

	_, err := runCmd(t)
	require.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, "-c", cfg, "shuffle")
	require.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, "-c", cfg, "sort", filepath.Join(dir, "only-one.db"))
	require.ErrorIs(t, err, errUsage)
	require.ErrorContains(t, err, "sort takes 2 argument(s), got 1")
	_, err = runCmd(t, "-c", cfg, "generate", filepath.Join(dir, "x.db"), "--bogus")
	require.ErrorIs(t, err, errUsage)
	require.ErrorContains(t, err, "generate: unknown flag")
}

func TestRun_SortRejectsBadRequests(t *testing.T) {
	dir, cfg := setupConfig(t)
	in := filepath.Join(dir, "in.db")
	_, err := runCmd(t, "-c", cfg, "generate", in, "-n", "20", "--seed", "1")
	require.NoError(t, err)

	_, err = runCmd(t, "-c", cfg, "sort", in, filepath.Join(dir, "a.db"), "--field", "zip")
	require.Error(t, err)
	_, err = runCmd(t, "-c", cfg, "sort", in, filepath.Join(dir, "b.db"), "--budget", "13")
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(dir, "b.db"))
}
