package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/reposcope-mcp/internal/parser"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

// SystemPrompt instructs the model on the summary format
const SystemPrompt = `You summarize source files for a code search index.
For every file you are given, reply with one fenced json block:

` + "```json" + `
{"file": "<relative path>", "purpose": "...", "summary": "...",
 "functions": ["..."], "classes": ["..."], "dependencies": ["..."], "notes": ["..."]}
` + "```" + `

Use "files" instead of "file" when one summary covers several files.
Go files are preceded by a declaration outline; list those functions and types.`

// BuildPrompt renders a chunk's files for the model, in chunk order.
// Go files get their declaration outline ahead of the source.
func BuildPrompt(chunk types.Chunk, files map[string]string) string {
	outliner := parser.New()
	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s\n", chunk.Directory)
	if chunk.IsPart() {
		fmt.Fprintf(&b, "This is part %d of %s (characters %d-%d).\n", chunk.Part, chunk.ParentFile, chunk.Start, chunk.End)
	}
	b.WriteString("\n")

	for _, rel := range orderedFiles(chunk, files) {
		fmt.Fprintf(&b, "=== %s ===\n", rel)
		if parser.IsGoFile(rel) {
			if outline := outliner.Parse(rel, []byte(files[rel])).String(); outline != "" {
				fmt.Fprintf(&b, "--- outline ---\n%s--- source ---\n", outline)
			}
		}
		fmt.Fprintf(&b, "%s\n\n", files[rel])
	}
	return b.String()
}

// orderedFiles lists chunk files first, then any extra keys sorted
func orderedFiles(chunk types.Chunk, files map[string]string) []string {
	seen := make(map[string]bool, len(files))
	var out []string
	for _, rel := range chunk.Files {
		if _, ok := files[rel]; ok && !seen[rel] {
			out = append(out, rel)
			seen[rel] = true
		}
	}
	var extra []string
	for rel := range files {
		if !seen[rel] {
			extra = append(extra, rel)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
