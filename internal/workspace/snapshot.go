package workspace

// Snapshot is the persisted form of a workspace.
type Snapshot struct {
	Files  *Collection
	Deps   *Dependencies
	Active string
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Files: s.Files.Clone(), Deps: s.Deps.Clone(), Active: s.Active}
}
