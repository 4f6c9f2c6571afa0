package backup

import "io/fs"

// capturedModeBits are the mode bits a backup records and a restore puts back.
const capturedModeBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Path is a config file location as seen by the engine. The path keeps the
// spelling the caller gave, made absolute. The info comes from following any
// symlink, so a dotfile linked into a repo reads as the file it points at.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath is used by FilesystemManager implementations when resolving.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		isDir:   isDir,
		info:    info,
	}
}

func (p *Path) String() string {
	return p.absPath
}

func (p *Path) IsDir() bool {
	return p.isDir
}

// Info is the stat taken at resolve time. It is not refreshed.
func (p *Path) Info() fs.FileInfo {
	return p.info
}

// Backupable reports whether the path is a regular file that a backup can
// capture. Directories and devices are refused.
func (p *Path) Backupable() bool {
	return !p.isDir && p.info != nil && p.info.Mode().IsRegular()
}

// CapturedMode is the part of the file mode stored in a backup record.
func (p *Path) CapturedMode() fs.FileMode {
	if p.info == nil {
		return 0
	}
	return p.info.Mode() & capturedModeBits
}
