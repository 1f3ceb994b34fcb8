package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiesta/internal/assist"
	"fiesta/internal/terminal"
	"fiesta/internal/workspace"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WorkspaceRoundTrip(t *testing.T) {
	s := openMemory(t)

	_, ok, err := s.LoadWorkspace()
	require.NoError(t, err)
	assert.False(t, ok)

	files := workspace.StarterProject()
	files.Put(workspace.NewDocument("main.py", "print(1)"))
	deps := workspace.NewDependencies(
		workspace.Dependency{Name: "three"},
		workspace.Dependency{Name: "lodash", Version: "4.17.21"},
	)
	require.NoError(t, s.SaveWorkspace(workspace.Snapshot{Files: files, Deps: deps, Active: "main.py"}))

	snap, ok, err := s.LoadWorkspace()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, files.Equal(snap.Files))
	assert.Equal(t, deps.List(), snap.Deps.List())
	assert.Equal(t, "main.py", snap.Active)

	// Saving again replaces, not appends.
	require.NoError(t, files.Delete("main.py"))
	require.NoError(t, s.SaveWorkspace(workspace.Snapshot{Files: files, Deps: workspace.NewDependencies(), Active: "index.html"}))
	snap, _, err = s.LoadWorkspace()
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "style.css", "script.js"}, snap.Files.Names())
	assert.Zero(t, snap.Deps.Len())
	assert.Equal(t, "index.html", snap.Active)
}

func TestStore_Messages(t *testing.T) {
	s := openMemory(t)
	base := time.Unix(1700000000, 0)

	for i, text := range []string{"one", "two", "three"} {
		role := assist.RoleUser
		if i%2 == 1 {
			role = assist.RoleModel
		}
		require.NoError(t, s.AppendMessage(assist.Turn{ID: text, Role: role, Text: text, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	all, err := s.Messages(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Text)
	assert.Equal(t, assist.RoleModel, all[1].Role)
	assert.True(t, all[2].Timestamp.Equal(base.Add(2*time.Second)))

	last, err := s.Messages(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Text)
	assert.Equal(t, "three", last[1].Text)

	require.NoError(t, s.ClearMessages())
	all, err = s.Messages(0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_JournalWithTerminal(t *testing.T) {
	s := openMemory(t)
	term := terminal.New(s)

	term.Log(terminal.System, "--- Executing ---")
	term.Log(terminal.Success, "Preview refreshed")

	logs, err := s.Logs(0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, terminal.System, logs[0].Severity)
	assert.Equal(t, "Preview refreshed", logs[1].Message)
	assert.Equal(t, term.Entries()[0].ID, logs[0].ID)

	require.NoError(t, term.Clear())
	logs, err = s.Logs(0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestStore_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fiesta.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveWorkspace(workspace.Snapshot{
		Files: workspace.StarterProject(),
		Deps:  workspace.NewDependencies(),
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	snap, ok, err := s.LoadWorkspace()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, snap.Files.Len())
	assert.Equal(t, path, s.Path())
}
