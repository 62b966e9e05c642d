package events

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Framework payload shapes. These are the only types an agent framework
// integration fills in; everything downstream sees Event values.

// RawCall is a function call requested by the model
type RawCall struct {
	Name string
	Args map[string]any
}

// RawResponse is the value a function call returned
type RawResponse struct {
	Name     string
	Response any
}

// RawUsage carries model token counters
type RawUsage struct {
	PromptTokens     int
	CandidatesTokens int
	ThoughtsTokens   int
	CachedTokens     int
	TotalTokens      int
}

// RawEvent is one framework callback
type RawEvent struct {
	Calls        []RawCall
	Responses    []RawResponse
	Texts        []string
	IsFinal      bool
	ErrorCode    string
	ErrorMessage string
	Usage        *RawUsage
}

const (
	maxThoughtLen  = 1000
	maxResponseLen = 1000

	proposeTool = "propose_code_change"
)

// DefaultToolAliases maps tool names to user-facing labels
var DefaultToolAliases = map[string]string{
	"analyze_repository":  "Analyzing repository",
	"analyze_chunk":       "Summarizing chunk",
	"get_indexed_files":   "Checking repository structure",
	"search_index":        "Searching codebase",
	"read_chunk":          "Reading chunk contents",
	"retrieve_file":       "Reading file",
	"get_file_tree":       "Browsing repository tree",
	"get_status":          "Checking index status",
	"propose_code_change": "Proposing code changes",
	"resolve_proposal":    "Applying proposal decision",
}

// DefaultAgentAliases maps agent names to user-facing labels
var DefaultAgentAliases = map[string]string{
	"orchestrator":    "Task Manager",
	"answering_agent": "Response Assistant",
	"coding_agent":    "Developer Assistant",
	"research_agent":  "Research Analyst",
}

var agentMarkers = []string{"agent", "orchestrator", "assistant", "manager"}

var (
	foundIndexed  = regexp.MustCompile(`Total indexed documents:\s*(\d+)`)
	foundRelevant = regexp.MustCompile(`Found\s+(\d+)\s+relevant`)
)

// Adapter converts RawEvents into Events
type Adapter struct {
	ToolAliases  map[string]string
	AgentAliases map[string]string
}

// NewAdapter creates an adapter with the default alias tables
func NewAdapter() *Adapter {
	return &Adapter{
		ToolAliases:  DefaultToolAliases,
		AgentAliases: DefaultAgentAliases,
	}
}

// IsAgent reports whether a callee name refers to a sub-agent rather than a tool
func IsAgent(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range agentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ToolAlias returns the label for a tool, title-casing unknown names
func (a *Adapter) ToolAlias(name string) string {
	return a.alias(a.ToolAliases, name)
}

// AgentAlias returns the label for an agent, title-casing unknown names
func (a *Adapter) AgentAlias(name string) string {
	return a.alias(a.AgentAliases, name)
}

func (a *Adapter) alias(table map[string]string, name string) string {
	if label, ok := table[name]; ok {
		return label
	}
	// Casers carry state, so each call gets its own
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

func (a *Adapter) calleeAlias(name string) (string, bool) {
	if IsAgent(name) {
		return a.AgentAlias(name), true
	}
	return a.ToolAlias(name), false
}

// Adapt converts one framework callback into zero or more events, in the
// order calls, responses, usage, text, error
func (a *Adapter) Adapt(raw RawEvent) []Event {
	var out []Event

	for _, call := range raw.Calls {
		alias, isAgent := a.calleeAlias(call.Name)
		out = append(out, ToolCall{Tool: call.Name, Alias: alias, IsAgent: isAgent, Args: call.Args})
	}

	for _, resp := range raw.Responses {
		alias, isAgent := a.calleeAlias(resp.Name)
		text := truncate(responseText(resp.Response), maxResponseLen)
		out = append(out, ToolResponse{
			Tool:    resp.Name,
			Alias:   alias,
			IsAgent: isAgent,
			Summary: SummarizeResponse(resp.Name, text),
		})
		if resp.Name == proposeTool {
			if p, ok := proposalFrom(resp.Response); ok {
				out = append(out, p)
			}
		}
	}

	if u := raw.Usage; u != nil {
		out = append(out, TokenUsage{
			PromptTokens:     u.PromptTokens,
			CandidatesTokens: u.CandidatesTokens,
			ThoughtsTokens:   u.ThoughtsTokens,
			CachedTokens:     u.CachedTokens,
			TotalTokens:      u.TotalTokens,
		})
	}

	for _, text := range raw.Texts {
		if text == "" {
			continue
		}
		switch {
		case raw.IsFinal:
			out = append(out, FinalAnswer{Text: text})
		case len(raw.Calls) == 0 && len(raw.Responses) == 0:
			out = append(out, Thought{Text: truncate(text, maxThoughtLen)})
		}
	}

	if raw.ErrorCode != "" {
		msg := raw.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("agent encountered an error (%s)", raw.ErrorCode)
		}
		out = append(out, Error{Code: raw.ErrorCode, Message: msg})
	}

	return out
}

// SummarizeResponse reduces a tool response to a short status line
func SummarizeResponse(tool, response string) string {
	switch {
	case strings.Contains(tool, "get_indexed_files"):
		if m := foundIndexed.FindStringSubmatch(response); m != nil {
			return "Found " + m[1] + " indexed files"
		}
		return "Checked index"
	case strings.Contains(tool, "search_index"):
		if m := foundRelevant.FindStringSubmatch(response); m != nil {
			return "Found " + m[1] + " relevant results"
		}
		return "Search complete"
	case strings.Contains(tool, "read_chunk"):
		return "Chunk loaded"
	case IsAgent(tool):
		if len(response) > 10 {
			return "Provided findings"
		}
		return "Analysis complete"
	default:
		return "Complete"
	}
}

func responseText(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		return fmt.Sprint(r)
	}
}

// proposalFrom reads a successful propose_code_change response
func proposalFrom(v any) (CodeProposal, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return CodeProposal{}, false
	}
	if success, _ := m["success"].(bool); !success {
		return CodeProposal{}, false
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	p := CodeProposal{
		ProposalID:      str("proposal_id"),
		FilePath:        str("file_path"),
		OriginalContent: str("original_content"),
		ProposedContent: str("proposed_content"),
	}
	if p.ProposalID == "" {
		return CodeProposal{}, false
	}
	return p, true
}

// truncate cuts s to n characters, marking the cut with "..."
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
