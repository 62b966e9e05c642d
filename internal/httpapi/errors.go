package httpapi

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/render"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
)

var (
	// ErrNotFound is rendered as 404
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is rendered as 503
	ErrUnavailable = errors.New("service unavailable")
)

// ErrResponse is the JSON body of every failed request
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText string `json:"status"`          // short status message
	AppCode    string `json:"code,omitempty"`  // application-specific error code
	ErrorText  string `json:"error,omitempty"` // application-level error message
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrInvalidRequest renders err as a 400
func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

// errorResponse maps a domain error to its HTTP status
func errorResponse(err error) *ErrResponse {
	resp := &ErrResponse{Err: err, ErrorText: err.Error()}
	if code := proposals.CodeOf(err); code != "" {
		resp.AppCode = string(code)
	}

	switch {
	case errors.Is(err, indexer.ErrOutsideRoot):
		resp.HTTPStatusCode = http.StatusForbidden
		resp.StatusText = "Forbidden."
	case errors.Is(err, indexer.ErrFileTooLarge):
		resp.HTTPStatusCode = http.StatusRequestEntityTooLarge
		resp.StatusText = "File too large."
	case errors.Is(err, searchengine.ErrInvalidArgument),
		errors.Is(err, indexer.ErrNotFile),
		proposals.CodeOf(err) == proposals.CodeInvalidData:
		resp.HTTPStatusCode = http.StatusBadRequest
		resp.StatusText = "Invalid request."
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ingest.ErrNoLedger),
		errors.Is(err, os.ErrNotExist),
		proposals.CodeOf(err) == proposals.CodeNotFound,
		proposals.CodeOf(err) == proposals.CodeFileNotFound:
		resp.HTTPStatusCode = http.StatusNotFound
		resp.StatusText = "Not found."
	case errors.Is(err, analyzer.ErrAnalysisInProgress):
		resp.HTTPStatusCode = http.StatusConflict
		resp.StatusText = "Analysis in progress."
	case errors.Is(err, ErrUnavailable):
		resp.HTTPStatusCode = http.StatusServiceUnavailable
		resp.StatusText = "Unavailable."
	default:
		resp.HTTPStatusCode = http.StatusInternalServerError
		resp.StatusText = "Internal error."
	}
	return resp
}
