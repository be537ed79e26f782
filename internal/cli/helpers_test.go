package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

const (
	librarySchema = "testdata/library.yaml"
	strictSchema  = "testdata/strict.yaml"
	brokenSchema  = "testdata/broken.yaml"
	cycleSchema   = "testdata/cycle.cue"
)

// execute runs the root command with args and returns what it printed to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if errOut.Len() > 0 {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}

// decode parses a JSON response and re-decodes its data into v.
func decode(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, v))
	}
	return resp
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "app.db")
}

// execSQL runs raw statements against the database at path.
func execSQL(t *testing.T, path string, stmts ...string) {
	t.Helper()
	st, err := store.Open(context.Background(), path, store.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	defer st.Close()
	for _, stmt := range stmts {
		_, err := st.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

// queryInts runs a query returning one integer column.
func queryInts(t *testing.T, path, query string) []int64 {
	t.Helper()
	st, err := store.Open(context.Background(), path, store.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	defer st.Close()

	rows, err := st.DB().Query(query)
	require.NoError(t, err)
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var n int64
		require.NoError(t, rows.Scan(&n))
		out = append(out, n)
	}
	require.NoError(t, rows.Err())
	return out
}
