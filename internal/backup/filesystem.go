package backup

import "io/fs"

// FilesystemManager abstracts access to the files being backed up and
// restored, so the engine can be tested without touching real user files.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it and returns a Path.
	// Missing paths fail with an error matching fs.ErrNotExist.
	// Symlinks are followed; devices, pipes and sockets are rejected.
	Resolve(rawPath string) (*Path, error)

	// ReadFile returns the full content of a regular file.
	ReadFile(path *Path) ([]byte, error)

	// WriteFile replaces the file at absPath with data. The write is staged
	// in the same directory and renamed into place, so a failed write leaves
	// any existing file untouched. Missing parent directories are created.
	WriteFile(absPath string, data []byte, perm fs.FileMode) error

	// Chmod sets the permission bits of absPath.
	Chmod(absPath string, mode fs.FileMode) error
}
