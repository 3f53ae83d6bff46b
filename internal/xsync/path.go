package xsync

import (
	"io/fs"

	"github.com/spf13/afero"
)

// PartialSuffix marks an in-progress download beside its target.
const PartialSuffix = ".xsync-part"

// Path is a file location inside the sync root. Rel uses forward slashes
// and is the key under which the server stores the file.
type Path struct {
	Abs string
	Rel string
}

func (p *Path) String() string { return p.Rel }

// LocalFS is the client's root-confined view of the local filesystem.
type LocalFS interface {
	// Resolve canonicalizes raw and fails with ErrPathViolation if it lies
	// outside the sync root. The target need not exist. The root itself
	// resolves to Rel ".".
	Resolve(raw string) (*Path, error)

	// FromRel resolves a root-relative path as recorded by the server.
	FromRel(rel string) (*Path, error)

	// Stat returns nil, nil when the path does not exist.
	Stat(p *Path) (fs.FileInfo, error)

	// FindFiles lists syncable regular files under dir.
	FindFiles(dir *Path, recursive bool) ([]*Path, error)

	// Fs is the filesystem all paths refer to.
	Fs() afero.Fs
}
