package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/dshills/reposcope-mcp/pkg/types"
)

// ErrNoSummaries is returned when a response holds no valid summary
var ErrNoSummaries = errors.New("no valid summaries in model response")

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)[ \\t]*\\r?\\n(.*?)```")

// ExtractSummaries decodes every fenced json block in text. A block may hold
// one summary object or an array of them. Blocks that do not decode, and
// summaries that fail validation, are skipped.
func ExtractSummaries(text string) ([]types.ChunkSummary, error) {
	var out []types.ChunkSummary
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		for _, s := range decodeBlock([]byte(m[1])) {
			if s.Validate() == nil {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSummaries
	}
	return out, nil
}

func decodeBlock(block []byte) []types.ChunkSummary {
	block = bytes.TrimSpace(block)
	if len(block) == 0 {
		return nil
	}
	if block[0] == '[' {
		var many []types.ChunkSummary
		if err := json.Unmarshal(block, &many); err != nil {
			return nil
		}
		return many
	}
	var one types.ChunkSummary
	if err := json.Unmarshal(block, &one); err != nil {
		return nil
	}
	return []types.ChunkSummary{one}
}
