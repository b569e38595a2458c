package index

import (
	"fmt"
	"os"
)

// RawFileContent is the verbatim content of one session file, for
// diagnostics.
type RawFileContent struct {
	Path    string
	Content string
}

// RawFiles reads every file recorded for a session, primary first.
func (s *Store) RawFiles(sessionID string) ([]RawFileContent, error) {
	files, err := s.GetSessionFiles(sessionID)
	if err != nil {
		return nil, err
	}
	contents := make([]RawFileContent, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.Path, err)
		}
		contents = append(contents, RawFileContent{Path: file.Path, Content: string(data)})
	}
	return contents, nil
}
