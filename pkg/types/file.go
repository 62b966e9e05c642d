package types

// FileInfo describes one source file discovered by a repository scan
type FileInfo struct {
	Path         string `json:"path"`          // Absolute path on disk
	RelativePath string `json:"relative_path"` // Slash-separated, relative to the repository root
	Size         int64  `json:"size"`
	LinesOfCode  int    `json:"lines_of_code"`
	Extension    string `json:"extension"`
	Language     string `json:"language"`
	Hash         string `json:"hash"` // sha256 hex of file content
}

// Validate checks the file info for required fields
func (f *FileInfo) Validate() error {
	if f.Path == "" {
		return ErrEmptyPath
	}
	if f.RelativePath == "" {
		return ErrEmptyRelativePath
	}
	if f.Size < 0 {
		return ErrInvalidSize
	}
	return nil
}
