package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/reposcope-mcp/pkg/types"
)

const (
	noDocumentsMessage = "No documents have been indexed yet. Please analyze a repository first."
	noResultsMessage   = "No relevant context found in the indexed repository for this query."

	maxListedFiles = 10
)

// FolderListing is one repository in a get_indexed_files report
type FolderListing struct {
	Folder string
	Stats  types.Stats
	Files  []string
}

// FormatSearchResults renders results for an agent, one block per hit.
// Documents holding a JSON summary are expanded field by field.
func FormatSearchResults(results []types.SearchResult) string {
	if len(results) == 0 {
		return noResultsMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "--- Result %d (distance: %.4f) ---\n", i+1, r.Score)

		var s types.ChunkSummary
		if err := json.Unmarshal([]byte(r.Content), &s); err != nil {
			fmt.Fprintf(&b, "Document: %s\n%s\n\n", r.DocID, r.Content)
			continue
		}

		file := r.DocID
		if files := s.MentionedFiles(); len(files) > 0 {
			file = strings.Join(files, ", ")
		}
		fmt.Fprintf(&b, "File: %s\n", file)
		writeField(&b, "Purpose", s.Purpose)
		writeField(&b, "Summary", s.Summary)
		writeField(&b, "Functions", joinFirst(s.Functions, 10, ", "))
		writeField(&b, "Classes", joinFirst(s.Classes, 10, ", "))
		writeField(&b, "Dependencies", joinFirst(s.Dependencies, 5, ", "))
		writeField(&b, "Notes", joinFirst(s.Notes, 3, "; "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatIndexedFiles renders index statistics and summarized files per folder
func FormatIndexedFiles(listings []FolderListing) string {
	var total types.Stats
	for _, l := range listings {
		total.TotalDocuments += l.Stats.TotalDocuments
		total.DocStoreSize += l.Stats.DocStoreSize
		if total.Dimension == 0 {
			total.Dimension = l.Stats.Dimension
		}
	}

	var b strings.Builder
	b.WriteString("Index Statistics:\n")
	fmt.Fprintf(&b, "- Total indexed documents: %d\n", total.TotalDocuments)
	fmt.Fprintf(&b, "- Document store size: %d\n", total.DocStoreSize)
	fmt.Fprintf(&b, "- Embedding dimension: %d\n", total.Dimension)

	sorted := append([]FolderListing(nil), listings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Folder < sorted[j].Folder })
	for _, l := range sorted {
		fmt.Fprintf(&b, "\nRepository: %s\n", l.Folder)
		fmt.Fprintf(&b, "   Documents: %d\n", l.Stats.TotalDocuments)
		fmt.Fprintf(&b, "   Files indexed: %d\n", len(l.Files))
		for i, f := range l.Files {
			if i == maxListedFiles {
				fmt.Fprintf(&b, "   ... and %d more files\n", len(l.Files)-maxListedFiles)
				break
			}
			fmt.Fprintf(&b, "   - %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func joinFirst(items []string, n int, sep string) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, sep)
}

// mergeSorted returns the sorted union of a and b
func mergeSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
