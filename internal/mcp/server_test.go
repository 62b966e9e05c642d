package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/chunker"
	"github.com/dshills/reposcope-mcp/internal/embedder"
	"github.com/dshills/reposcope-mcp/internal/events"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

var promptFile = regexp.MustCompile(`(?m)^=== (.+) ===$`)

// summaryRunner answers every prompt with one summary per listed file
type summaryRunner struct{}

func (summaryRunner) Run(_ context.Context, prompt string) (analyzer.Response, error) {
	var b strings.Builder
	for _, m := range promptFile.FindAllStringSubmatch(prompt, -1) {
		data, _ := json.Marshal(types.ChunkSummary{
			File:      m[1],
			Purpose:   "purpose of " + m[1],
			Summary:   "summary of " + m[1],
			Functions: []string{"Handle"},
		})
		fmt.Fprintf(&b, "```json\n%s\n```\n", data)
	}
	return analyzer.Response{Text: b.String(), Usage: analyzer.Usage{TotalTokens: 12}}, nil
}

type testEnv struct {
	server   *Server
	sessions *chunker.Sessions
	base     string
	repo     string
}

func newTestEnv(t *testing.T, withPipeline bool) *testEnv {
	t.Helper()
	base := t.TempDir()
	reposDir := filepath.Join(base, "repos")
	repo := filepath.Join(reposDir, "myrepo")
	for rel, content := range map[string]string{
		"main.go":        "package main\n\nfunc main() {}\n",
		"api/handler.go": "package api\n\nfunc Handle() {}\n",
		"api/user.go":    "package api\n\ntype User struct{}\n",
	} {
		path := filepath.Join(repo, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	reg := searchengine.NewRegistry(filepath.Join(base, "indices"), embedder.NewLocalProvider(8), nil)
	ing := ingest.New(filepath.Join(base, "llm_response"), reg, nil)
	sessions := chunker.NewSessions(filepath.Join(base, "chunks"))

	deps := Deps{
		Registry:  reg,
		Ingestor:  ing,
		Sessions:  sessions,
		Proposals: proposals.NewStore(proposals.Options{Root: base}),
		ReposDir:  reposDir,
	}
	if withPipeline {
		p, err := analyzer.New(analyzer.Deps{Runner: summaryRunner{}, Sessions: sessions, Ingestor: ing, Registry: reg}, analyzer.Options{})
		require.NoError(t, err)
		deps.Pipeline = p
	}

	s, err := NewServer(deps)
	require.NoError(t, err)
	return &testEnv{server: s, sessions: sessions, base: base, repo: repo}
}

func (e *testEnv) call(t *testing.T, tool string, args map[string]interface{}) (string, error) {
	t.Helper()
	h, ok := e.server.handlers[tool]
	require.True(t, ok, "tool %s registered", tool)
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	}
	result, err := h(context.Background(), request)
	if err != nil {
		return "", err
	}
	return resultText(result), nil
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer_MissingDependency(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestServer_RegistersAllTools(t *testing.T) {
	env := newTestEnv(t, false)
	for _, name := range []string{
		toolAnalyzeRepository, toolSearchIndex, toolReadChunk, toolGetIndexedFiles,
		toolGetStatus, toolProposeCodeChange, toolResolveProposal, toolRetrieveFile, toolGetFileTree,
	} {
		assert.Contains(t, env.server.handlers, name)
	}
}

func TestSearchIndex_BeforeAnalysis(t *testing.T) {
	env := newTestEnv(t, false)
	text, err := env.call(t, toolSearchIndex, map[string]interface{}{"folder_id": "myrepo", "query": "users"})
	require.NoError(t, err)
	assert.Equal(t, noDocumentsMessage, text)
}

func TestAnalyzeThenSearch(t *testing.T) {
	env := newTestEnv(t, true)

	text, err := env.call(t, toolAnalyzeRepository, map[string]interface{}{"folder_id": "myrepo"})
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &report))
	assert.Equal(t, "success", report["status"])
	assert.EqualValues(t, 3, report["files_indexed"])
	assert.EqualValues(t, 2, report["chunks"])
	assert.EqualValues(t, 3, report["documents_ingested"])

	text, err = env.call(t, toolSearchIndex, map[string]interface{}{"folder_id": "myrepo", "query": "summary of api/user.go", "top_k": float64(2)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Found 2 relevant results:"), text)
	assert.Contains(t, text, "Purpose: purpose of")
	assert.Contains(t, text, "Functions: Handle")

	text, err = env.call(t, toolGetIndexedFiles, map[string]interface{}{})
	require.NoError(t, err)
	assert.Contains(t, text, "Total indexed documents: 3")
	assert.Contains(t, text, "Repository: myrepo")
	assert.Contains(t, text, "   - api/user.go")

	chunks, err := env.sessions.LoadChunks("myrepo")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	text, err = env.call(t, toolReadChunk, map[string]interface{}{"folder_id": "myrepo", "chunk_id": chunks[0].ChunkID})
	require.NoError(t, err)
	var content chunker.ChunkContent
	require.NoError(t, json.Unmarshal([]byte(text), &content))
	assert.True(t, content.OK())
	assert.NotEmpty(t, content.Files)

	text, err = env.call(t, toolGetStatus, map[string]interface{}{"folder_id": "myrepo"})
	require.NoError(t, err)
	var status struct {
		Folders []struct {
			FolderID        string `json:"folder_id"`
			TotalDocuments  int    `json:"total_documents"`
			FilesSummarized int    `json:"files_summarized"`
			Running         bool   `json:"analysis_running"`
		} `json:"folders"`
		AnalysisAvailable bool            `json:"analysis_available"`
		RecentEvents      []events.Record `json:"recent_events"`
		TokensUsed        int             `json:"tokens_used"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	require.Len(t, status.Folders, 1)
	assert.Equal(t, "myrepo", status.Folders[0].FolderID)
	assert.Equal(t, 3, status.Folders[0].TotalDocuments)
	assert.Equal(t, 3, status.Folders[0].FilesSummarized)
	assert.False(t, status.Folders[0].Running)
	assert.True(t, status.AnalysisAvailable)
	assert.NotEmpty(t, status.RecentEvents)
	assert.Equal(t, 2*12, status.TokensUsed)
}

func TestAnalyzeRepository_Errors(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		env := newTestEnv(t, false)
		_, err := env.call(t, toolAnalyzeRepository, map[string]interface{}{"folder_id": "myrepo"})
		requireCode(t, err, ErrorCodeAnalysisUnavailable)
	})

	env := newTestEnv(t, true)
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing folder", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"invalid folder", map[string]interface{}{"folder_id": "../etc"}, ErrorCodeInvalidParams},
		{"unknown checkout", map[string]interface{}{"folder_id": "ghost"}, ErrorCodeNotFound},
		{"relative path", map[string]interface{}{"folder_id": "myrepo", "path": "repos/myrepo"}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.call(t, toolAnalyzeRepository, tt.args)
			requireCode(t, err, tt.code)
		})
	}
}

func TestSearchIndex_InvalidParams(t *testing.T) {
	env := newTestEnv(t, false)
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{"folder_id": "myrepo"}, ErrorCodeEmptyQuery},
		{"empty query", map[string]interface{}{"folder_id": "myrepo", "query": ""}, ErrorCodeEmptyQuery},
		{"whitespace query", map[string]interface{}{"folder_id": "myrepo", "query": " \t\n "}, ErrorCodeEmptyQuery},
		{"zero top_k", map[string]interface{}{"folder_id": "myrepo", "query": "q", "top_k": float64(0)}, ErrorCodeInvalidParams},
		{"huge top_k", map[string]interface{}{"folder_id": "myrepo", "query": "q", "top_k": 101}, ErrorCodeInvalidParams},
		{"missing folder", map[string]interface{}{"query": "q"}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.call(t, toolSearchIndex, tt.args)
			requireCode(t, err, tt.code)
		})
	}
}

func TestReadChunk_StatusNotError(t *testing.T) {
	env := newTestEnv(t, false)

	text, err := env.call(t, toolReadChunk, map[string]interface{}{"folder_id": "myrepo", "chunk_id": "chunk-00000000"})
	require.NoError(t, err)
	var content chunker.ChunkContent
	require.NoError(t, json.Unmarshal([]byte(text), &content))
	assert.Equal(t, chunker.StatusSessionMissing, content.Status)

	require.NoError(t, env.sessions.SaveSession("myrepo", []types.Chunk{}, []types.FileInfo{}))
	text, err = env.call(t, toolReadChunk, map[string]interface{}{"folder_id": "myrepo", "chunk_id": "chunk-00000000"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text), &content))
	assert.Equal(t, chunker.StatusChunkNotFound, content.Status)

	_, err = env.call(t, toolReadChunk, map[string]interface{}{"folder_id": "myrepo"})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestRetrieveFile(t *testing.T) {
	env := newTestEnv(t, false)

	text, err := env.call(t, toolRetrieveFile, map[string]interface{}{"folder_id": "myrepo", "path": "api/handler.go"})
	require.NoError(t, err)
	var content indexer.FileContent
	require.NoError(t, json.Unmarshal([]byte(text), &content))
	assert.Equal(t, "api/handler.go", content.Path)
	assert.Equal(t, "package api\n\nfunc Handle() {}\n", content.Content)

	outside := filepath.Join(env.base, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(env.repo, "leak.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(env.repo, "big.txt"), make([]byte, indexer.MaxFileSize+1), 0o644))

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing path", map[string]interface{}{"folder_id": "myrepo"}, ErrorCodeInvalidParams},
		{"missing folder", map[string]interface{}{"path": "main.go"}, ErrorCodeInvalidParams},
		{"traversal", map[string]interface{}{"folder_id": "myrepo", "path": "../../secret.txt"}, ErrorCodeInvalidParams},
		{"symlink out of checkout", map[string]interface{}{"folder_id": "myrepo", "path": "leak.txt"}, ErrorCodeInvalidParams},
		{"too large", map[string]interface{}{"folder_id": "myrepo", "path": "big.txt"}, ErrorCodeInvalidParams},
		{"directory", map[string]interface{}{"folder_id": "myrepo", "path": "api"}, ErrorCodeInvalidParams},
		{"missing file", map[string]interface{}{"folder_id": "myrepo", "path": "nope.go"}, ErrorCodeNotFound},
		{"unknown checkout", map[string]interface{}{"folder_id": "ghost", "path": "main.go"}, ErrorCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.call(t, toolRetrieveFile, tt.args)
			requireCode(t, err, tt.code)
		})
	}
}

func TestGetFileTree(t *testing.T) {
	env := newTestEnv(t, false)

	text, err := env.call(t, toolGetFileTree, map[string]interface{}{"folder_id": "myrepo"})
	require.NoError(t, err)
	var listing struct {
		Folder string              `json:"folder_id"`
		Tree   []*indexer.TreeNode `json:"tree"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &listing))
	assert.Equal(t, "myrepo", listing.Folder)
	require.Len(t, listing.Tree, 2)
	assert.Equal(t, "api", listing.Tree[0].Name)
	assert.Equal(t, "directory", listing.Tree[0].Type)
	assert.Len(t, listing.Tree[0].Children, 2)
	assert.Equal(t, "main.go", listing.Tree[1].Path)

	_, err = env.call(t, toolGetFileTree, map[string]interface{}{"folder_id": "ghost"})
	requireCode(t, err, ErrorCodeNotFound)
}

func TestProposalFlow(t *testing.T) {
	env := newTestEnv(t, false)
	target := filepath.Join(env.repo, "main.go")

	text, err := env.call(t, toolProposeCodeChange, map[string]interface{}{
		"file_path":        target,
		"proposed_content": "package main\n\nfunc main() { println(1) }\n",
	})
	require.NoError(t, err)
	var proposed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &proposed))
	id, _ := proposed["proposal_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "package main\n\nfunc main() {}\n", proposed["original_content"])

	var sawProposal bool
	for _, r := range env.server.Trace().Records() {
		if p, ok := r.Event.(events.CodeProposal); ok {
			sawProposal = true
			assert.Equal(t, id, p.ProposalID)
		}
	}
	assert.True(t, sawProposal, "proposal event recorded")

	text, err = env.call(t, toolResolveProposal, map[string]interface{}{"proposal_id": id, "action": "accept"})
	require.NoError(t, err)
	assert.Contains(t, text, `"success": true`)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc main() { println(1) }\n", string(data))

	_, err = env.call(t, toolResolveProposal, map[string]interface{}{"proposal_id": id, "action": "reject"})
	requireCode(t, err, ErrorCodeNotFound)
}

func TestProposal_Errors(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.call(t, toolProposeCodeChange, map[string]interface{}{
		"file_path":        filepath.Join(env.repo, "missing.go"),
		"proposed_content": "x",
	})
	requireCode(t, err, ErrorCodeNotFound)

	_, err = env.call(t, toolProposeCodeChange, map[string]interface{}{
		"file_path":        "/etc/passwd",
		"proposed_content": "x",
	})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.call(t, toolProposeCodeChange, map[string]interface{}{"file_path": "main.go"})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.call(t, toolResolveProposal, map[string]interface{}{"proposal_id": "abc", "action": "maybe"})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestTracedRecordsErrors(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.call(t, toolSearchIndex, map[string]interface{}{"folder_id": "myrepo"})
	require.Error(t, err)

	records := env.server.Trace().Records()
	require.Len(t, records, 2)
	call, ok := records[0].Event.(events.ToolCall)
	require.True(t, ok)
	assert.Equal(t, toolSearchIndex, call.Tool)
	assert.Equal(t, "Searching codebase", call.Alias)
	failure, ok := records[1].Event.(events.Error)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprint(ErrorCodeEmptyQuery), failure.Code)
	assert.Equal(t, AgentName, records[1].Agent)
}

func TestFormatSearchResults(t *testing.T) {
	assert.Equal(t, noResultsMessage, FormatSearchResults(nil))

	summary, _ := json.Marshal(types.ChunkSummary{
		File:         "a.go",
		Purpose:      "does a",
		Functions:    []string{"A", "B"},
		Notes:        []string{"n1", "n2", "n3", "n4"},
		Dependencies: []string{"fmt"},
	})
	text := FormatSearchResults([]types.SearchResult{
		{Score: 0.25, DocID: "doc-1", Content: string(summary)},
		{Score: 1.5, DocID: "doc-2", Content: "plain text body"},
	})

	assert.True(t, strings.HasPrefix(text, "Found 2 relevant results:"))
	assert.Contains(t, text, "--- Result 1 (distance: 0.2500) ---\nFile: a.go\nPurpose: does a")
	assert.Contains(t, text, "Functions: A, B")
	assert.Contains(t, text, "Notes: n1; n2; n3\n")
	assert.Contains(t, text, "Dependencies: fmt")
	assert.NotContains(t, text, "Summary:")
	assert.Contains(t, text, "Document: doc-2\nplain text body")
}

func TestFormatIndexedFiles(t *testing.T) {
	files := make([]string, 12)
	for i := range files {
		files[i] = fmt.Sprintf("f%02d.go", i)
	}
	text := FormatIndexedFiles([]FolderListing{
		{Folder: "b", Stats: types.Stats{TotalDocuments: 2, DocStoreSize: 2, Dimension: 8}, Files: files},
		{Folder: "a", Stats: types.Stats{TotalDocuments: 1, DocStoreSize: 1, Dimension: 8}},
	})
	assert.Contains(t, text, "- Total indexed documents: 3")
	assert.Contains(t, text, "- Embedding dimension: 8")
	assert.Less(t, strings.Index(text, "Repository: a"), strings.Index(text, "Repository: b"))
	assert.Contains(t, text, "   - f09.go")
	assert.NotContains(t, text, "f10.go")
	assert.Contains(t, text, "... and 2 more files")
}

func TestMergeSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeSorted([]string{"c", "a"}, []string{"b", "a"}))
	assert.Empty(t, mergeSorted(nil, nil))
}
