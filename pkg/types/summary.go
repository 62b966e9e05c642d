package types

import "strings"

// ChunkSummary is the structured description an analysis run produces for a chunk
type ChunkSummary struct {
	File         string   `json:"file,omitempty"`
	Files        []string `json:"files,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Functions    []string `json:"functions,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Notes        []string `json:"notes,omitempty"`
}

// MentionedFiles returns the distinct file paths the summary refers to, File first
func (s *ChunkSummary) MentionedFiles() []string {
	seen := make(map[string]struct{}, len(s.Files)+1)
	out := make([]string, 0, len(s.Files)+1)
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(s.File)
	for _, f := range s.Files {
		add(f)
	}
	return out
}

// Validate requires at least one file reference and one non-empty descriptive field
func (s *ChunkSummary) Validate() error {
	if len(s.MentionedFiles()) == 0 {
		return ErrSummaryNoFiles
	}
	if !s.hasDescription() {
		return ErrSummaryEmpty
	}
	return nil
}

func (s *ChunkSummary) hasDescription() bool {
	if strings.TrimSpace(s.Summary) != "" || strings.TrimSpace(s.Purpose) != "" {
		return true
	}
	for _, list := range [][]string{s.Functions, s.Classes, s.Dependencies, s.Notes} {
		for _, v := range list {
			if strings.TrimSpace(v) != "" {
				return true
			}
		}
	}
	return false
}
