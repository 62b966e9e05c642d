package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dshills/reposcope-mcp/internal/searchengine"
)

const (
	defaultTopK = 5
	maxTopK     = 100
)

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	FolderID string `json:"folder_id"`
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
}

func (req *SearchRequest) Bind(r *http.Request) error {
	if err := searchengine.ValidateFolderID(req.FolderID); err != nil {
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		return errors.New("query is required")
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	if req.TopK < 1 || req.TopK > maxTopK {
		return fmt.Errorf("top_k must be between 1 and %d", maxTopK)
	}
	return nil
}

// AnalysisRequest is the body of POST /api/analysis
type AnalysisRequest struct {
	FolderID string `json:"folder_id"`
	Path     string `json:"path,omitempty"` // Defaults to the repos directory joined with FolderID
}

func (req *AnalysisRequest) Bind(r *http.Request) error {
	return searchengine.ValidateFolderID(req.FolderID)
}

// ProposalActionRequest is the body of POST /api/proposals/action
type ProposalActionRequest struct {
	ProposalID string `json:"proposal_id"`
	Action     string `json:"action"`
}

func (req *ProposalActionRequest) Bind(r *http.Request) error {
	if req.ProposalID == "" {
		return errors.New("proposal_id is required")
	}
	if req.Action == "" {
		return errors.New("action is required")
	}
	return nil
}
