// Package proposals holds agent-suggested file edits until a user accepts or
// rejects them.
//
// Proposals live only in memory, bounded by a TTL and a maximum entry count,
// and are lost on restart. Each proposal is consumed at most once: a
// successful accept or any reject removes it.
package proposals

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/logging"
)

// Defaults for NewStore
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 1000
)

// Action is a user decision on a proposal
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Code classifies a proposal failure
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidData  Code = "INVALID_DATA"
	CodeFileNotFound Code = "FILE_NOT_FOUND"
	CodeWriteError   Code = "WRITE_ERROR"
)

// Error is returned by every failing Store operation
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the Code carried by err, or "" if err is not a proposal error
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Proposal is a pending replacement of one file's content
type Proposal struct {
	ID              string    `json:"proposal_id"`
	FilePath        string    `json:"file_path"`
	OriginalContent string    `json:"original_content"`
	ProposedContent string    `json:"proposed_content"`
	CreatedAt       time.Time `json:"created_at"`
}

// Result describes a resolved proposal
type Result struct {
	Success  bool   `json:"success"`
	Action   Action `json:"action"`
	Message  string `json:"message"`
	FilePath string `json:"file_path,omitempty"`
}

// Options configures a Store
type Options struct {
	TTL        time.Duration // Zero uses DefaultTTL
	MaxEntries int           // Zero uses DefaultMaxEntries
	Root       string        // When set, proposal paths must resolve inside Root
	Logger     *zap.Logger
}

// Store keeps pending proposals in a TTL-bounded LRU
type Store struct {
	// mu makes lookup-then-remove atomic so a proposal resolves once
	mu      sync.Mutex
	cache   *expirable.LRU[string, Proposal]
	root    string
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewStore creates an empty proposal store
func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	size := opts.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	logger := logging.OrNop(opts.Logger)
	onEvict := func(id string, p Proposal) {
		logger.Debug("proposal evicted", zap.String("proposal_id", id), zap.String("file", p.FilePath))
	}

	root := opts.Root
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	return &Store{
		cache:   expirable.NewLRU[string, Proposal](size, onEvict, ttl),
		root:    root,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// resolvePath makes path absolute and enforces the root, if any
func (s *Store) resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", newError(CodeInvalidData, nil, "file path is required")
	}
	if s.root == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", newError(CodeInvalidData, err, "invalid file path %q", path)
		}
		return abs, nil
	}

	resolved, err := indexer.ResolveWithin(s.root, path)
	if err != nil {
		return "", newError(CodeInvalidData, err, "file path %q is not allowed under %s", path, s.root)
	}
	return resolved, nil
}

// Propose records a replacement for an existing file, capturing its current content
func (s *Store) Propose(path, proposedContent string) (Proposal, error) {
	abs, err := s.resolvePath(path)
	if err != nil {
		return Proposal{}, err
	}

	original, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return Proposal{}, newError(CodeFileNotFound, err, "target file not found: %s", path)
	}
	if err != nil {
		return Proposal{}, newError(CodeInvalidData, err, "read %s", path)
	}

	p := Proposal{
		ID:              uuid.NewString(),
		FilePath:        abs,
		OriginalContent: string(original),
		ProposedContent: proposedContent,
		CreatedAt:       s.nowFunc().UTC(),
	}

	s.mu.Lock()
	s.cache.Add(p.ID, p)
	s.mu.Unlock()

	s.logger.Info("proposal created", zap.String("proposal_id", p.ID), zap.String("file", abs))
	return p, nil
}

// Get returns a pending proposal
func (s *Store) Get(id string) (Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(id)
}

// Len returns the number of pending proposals
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Resolve applies action to the proposal
func (s *Store) Resolve(id string, action Action) (Result, error) {
	switch action {
	case ActionAccept:
		return s.Accept(id)
	case ActionReject:
		return s.Reject(id)
	default:
		return Result{}, newError(CodeInvalidData, nil, "unknown action %q", action)
	}
}

// Accept writes the proposed content over the target file, then removes the
// proposal. On failure the proposal stays pending.
func (s *Store) Accept(id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.cache.Get(id)
	if !ok {
		return Result{}, newError(CodeNotFound, nil, "proposal %q not found or already processed", id)
	}
	if p.FilePath == "" {
		return Result{}, newError(CodeInvalidData, nil, "proposal %q has no file path", id)
	}

	// The path may have been swapped for a symlink since it was proposed
	if _, err := s.resolvePath(p.FilePath); err != nil {
		return Result{}, err
	}

	info, err := os.Stat(p.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return Result{}, newError(CodeFileNotFound, err, "target file not found: %s", p.FilePath)
	}
	if err != nil {
		return Result{}, newError(CodeWriteError, err, "stat %s", p.FilePath)
	}

	if err := atomicwriter.WriteFile(p.FilePath, []byte(p.ProposedContent), info.Mode().Perm()); err != nil {
		s.logger.Error("proposal write failed", zap.String("proposal_id", id), zap.Error(err))
		return Result{}, newError(CodeWriteError, err, "failed to apply changes to %s", p.FilePath)
	}

	s.cache.Remove(id)
	s.logger.Info("proposal accepted", zap.String("proposal_id", id), zap.String("file", p.FilePath))
	return Result{
		Success:  true,
		Action:   ActionAccept,
		Message:  "Changes applied successfully to " + filepath.Base(p.FilePath),
		FilePath: p.FilePath,
	}, nil
}

// Reject discards the proposal without touching the file
func (s *Store) Reject(id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.cache.Get(id)
	if !ok {
		return Result{}, newError(CodeNotFound, nil, "proposal %q not found or already processed", id)
	}
	s.cache.Remove(id)

	s.logger.Info("proposal rejected", zap.String("proposal_id", id))
	return Result{
		Success:  true,
		Action:   ActionReject,
		Message:  "Proposal rejected and cleared.",
		FilePath: p.FilePath,
	}, nil
}
