package toolserver

// ReadFileRequest asks for a file's contents relative to the workspace root.
type ReadFileRequest struct {
	Path string `json:"path"`
}

// ReadFileResponse carries a file's contents, or an error if it couldn't
// be read.
type ReadFileResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ListDirRequest asks for a directory listing relative to the workspace root.
type ListDirRequest struct {
	Path string `json:"path"`
}

// ListDirResponse carries the names of a directory's entries.
type ListDirResponse struct {
	Entries []DirEntry `json:"entries"`
	Error   string     `json:"error,omitempty"`
}

// DirEntry describes one entry returned by list_dir.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// GrepRequest searches workspace files for a pattern.
type GrepRequest struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"` // restrict search to this subtree; "" means the whole workspace
}

// GrepMatch is one matching line.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepResponse carries the matches found, capped at maxGrepMatches.
type GrepResponse struct {
	Matches []GrepMatch `json:"matches"`
	Error   string      `json:"error,omitempty"`
}

// ApplyPatchRequest carries a unified diff to apply to the workspace.
type ApplyPatchRequest struct {
	Patch string `json:"patch"`
}

// ApplyPatchResponse reports whether the patch applied cleanly.
type ApplyPatchResponse struct {
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}
