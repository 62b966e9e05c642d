package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   Chunk
		wantErr error
	}{
		{"valid group", Chunk{ChunkID: "chunk-1", Directory: "a", Files: []string{"a/x.go", "a/y.go"}, TokenEstimate: 10}, nil},
		{"missing id", Chunk{Files: []string{"a/x.go"}}, ErrInvalidChunkID},
		{"no files", Chunk{ChunkID: "chunk-1"}, ErrEmptyChunk},
		{"negative tokens", Chunk{ChunkID: "c", Files: []string{"x"}, TokenEstimate: -1}, ErrInvalidTokenEstimate},
		{"valid part", Chunk{ChunkID: "c", Files: []string{"big.go"}, ParentFile: "big.go", Part: 1, Start: 0, End: 10}, nil},
		{"part with siblings", Chunk{ChunkID: "c", Files: []string{"big.go", "x.go"}, ParentFile: "big.go", Part: 1, End: 10}, ErrInvalidPart},
		{"part bad range", Chunk{ChunkID: "c", Files: []string{"big.go"}, ParentFile: "big.go", Part: 1, Start: 10, End: 5}, ErrInvalidPart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChunkSummaryMentionedFiles(t *testing.T) {
	s := ChunkSummary{File: "a/x.go", Files: []string{"a/y.go", "a/x.go", " ", "a/z.go"}}
	assert.Equal(t, []string{"a/x.go", "a/y.go", "a/z.go"}, s.MentionedFiles())
}

func TestChunkSummaryValidate(t *testing.T) {
	assert.ErrorIs(t, (&ChunkSummary{Summary: "x"}).Validate(), ErrSummaryNoFiles)
	assert.ErrorIs(t, (&ChunkSummary{File: "a.go"}).Validate(), ErrSummaryEmpty)
	assert.NoError(t, (&ChunkSummary{File: "a.go", Purpose: "routing"}).Validate())
	assert.ErrorIs(t, (&ChunkSummary{File: "a.go", Notes: []string{" "}}).Validate(), ErrSummaryEmpty)

	for name, s := range map[string]ChunkSummary{
		"notes":        {File: "a.go", Notes: []string{"n"}},
		"functions":    {File: "a.go", Functions: []string{"Run"}},
		"classes":      {Files: []string{"a.go"}, Classes: []string{"Server"}},
		"dependencies": {File: "a.go", Dependencies: []string{"zap"}},
	} {
		assert.NoError(t, s.Validate(), name)
	}
}

func TestFileInfoValidate(t *testing.T) {
	assert.ErrorIs(t, (&FileInfo{}).Validate(), ErrEmptyPath)
	assert.ErrorIs(t, (&FileInfo{Path: "/x"}).Validate(), ErrEmptyRelativePath)
	assert.ErrorIs(t, (&FileInfo{Path: "/x", RelativePath: "x", Size: -1}).Validate(), ErrInvalidSize)
	assert.NoError(t, (&FileInfo{Path: "/x", RelativePath: "x"}).Validate())
}
