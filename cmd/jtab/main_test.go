package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJtabCommands(t *testing.T) {
	tempDB := filepath.Join(t.TempDir(), "test.db")
	seedFile := filepath.Join(t.TempDir(), "seed.yml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
tables:
  - key: users
    type: people
    columns:
      - key: id
        type: number
      - key: name
        type: string
    rows:
      - id: 1
        name: Alice
      - id: 2
        name: Bob
`), 0o600))
	setupLog(true)

	tests := []struct {
		name       string
		args       []string
		wantLog    string
		wantOutput string
		wantError  bool
	}{
		{
			name:    "demo writes sample table",
			args:    []string{"--conn", tempDB, "demo"},
			wantLog: "demo command",
		},
		{
			name:       "count demo table",
			args:       []string{"--conn", tempDB, "count", "notes"},
			wantLog:    `count command, table="notes"`,
			wantOutput: "2\n",
		},
		{
			name:      "count unknown table",
			args:      []string{"--conn", tempDB, "count", "ghosts"},
			wantLog:   `count command, table="ghosts"`,
			wantError: true,
		},
		{
			name:    "load seed file",
			args:    []string{"--conn", tempDB, "load", seedFile},
			wantLog: "loaded 1 tables",
		},
		{
			name:       "dump loaded table",
			args:       []string{"--conn", tempDB, "dump", "users"},
			wantLog:    `dump command, table="users"`,
			wantOutput: "Alice",
		},
		{
			name:       "dump all tables",
			args:       []string{"--conn", tempDB, "dump"},
			wantLog:    `dump command, table=""`,
			wantOutput: "first note",
		},
		{
			name:      "load missing seed file",
			args:      []string{"--conn", tempDB, "load", "nope.yml"},
			wantLog:   "load command",
			wantError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			os.Args = append([]string{"jtab"}, tc.args...)
			var buf bytes.Buffer
			log.SetOutput(&buf)

			// capture the standard output
			oldStdout := os.Stdout
			r, w, _ := os.Pipe()
			os.Stdout = w

			err := runCommand()

			_ = w.Close()
			os.Stdout = oldStdout

			if tc.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			logged := buf.String()
			for _, exp := range strings.Split(tc.wantLog, "\n") {
				assert.Contains(t, logged, exp)
			}

			if tc.wantOutput != "" {
				var out bytes.Buffer
				_, _ = io.Copy(&out, r)
				assert.Contains(t, out.String(), tc.wantOutput)
			}
		})
	}
}

func TestMainFunc(t *testing.T) {
	os.Args = []string{"jtab", "--help"}

	// capture the standard output
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// replace the exit function with a custom one
	exited := false
	exitFunc = func(int) {
		exited = true
	}

	main()

	exitFunc = os.Exit
	_ = w.Close()
	os.Stdout = oldStdout

	assert.True(t, exited)

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	assert.Contains(t, buf.String(), "jtab")
}

func runCommand() error {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		return err
	}
	return run(p, opts)
}
