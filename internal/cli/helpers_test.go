package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/scd2/internal/engine"
)

const customersCUE = `package specs

dimension: customers: {
	description: "Customer master data"
	columns: {
		id:    int
		name:  string
		email: null | string
	}
	tracked: ["id", "name"]
}
`

var (
	jan = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

// cliEnv runs commands against a scratch working directory holding a
// specs directory and a SQLite store.
type cliEnv struct {
	t      *testing.T
	dir    string
	db     string
	specs  string
	opts   *RootOptions
	stderr *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	specs := filepath.Join(dir, "specs")
	require.NoError(t, os.MkdirAll(specs, 0o755))
	writeFile(t, specs, "customers.cue", customersCUE)

	return &cliEnv{
		t:     t,
		dir:   dir,
		db:    filepath.Join(dir, "scd2.db"),
		specs: specs,
		opts: &RootOptions{
			Clock:  engine.ClockFunc(func() time.Time { return jan }),
			RunIDs: engine.NewFixedGenerator("run-1", "run-2", "run-3", "run-4"),
		},
		stderr: &bytes.Buffer{},
	}
}

// run executes the root command with args plus the env's --db and --specs.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand(e.opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(e.stderr)
	cmd.SetArgs(append(args, "--db", e.db, "--specs", e.specs))
	err := cmd.Execute()
	return out.String(), err
}

// source writes a YAML source snapshot into the env directory.
func (e *cliEnv) source(name, content string) string {
	e.t.Helper()
	return writeFile(e.t, e.dir, name, content)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sourceJan = `
- {id: 1, name: Alice, email: alice@example.com}
- {id: 2, name: Bob, email: null}
`

const sourceFeb = `
- {id: 1, name: Alicia, email: alice@example.com}
- {id: 2, name: Bob, email: bob@example.com}
`
