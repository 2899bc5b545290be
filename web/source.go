package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/loader"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

// writeJSONResponse writes a JSON response to the http.ResponseWriter.
// If encoding fails, it writes an error response.
func writeJSONResponse(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse is the JSON body of every failed request. Kind is set for rejected
// queries and submissions.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Kind             string `json:"kind,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}

// writeServiceError maps a query or submission failure to a status code by its kind.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := service.ErrorKind(err)

	status, code := http.StatusInternalServerError, "server_error"
	switch kind {
	case "structural", "lifecycle", "balance":
		status, code = http.StatusUnprocessableEntity, "rejected"
	case "query":
		status, code = http.StatusBadRequest, "invalid_query"
	case "halted":
		status, code = http.StatusServiceUnavailable, "writes_halted"
	case "storage":
		code = "storage_error"
	case "canceled":
		status, code = http.StatusServiceUnavailable, "canceled"
	}
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: err.Error(), Kind: kind})
}

type SourceResponse struct {
	File   string `json:"file"`
	Source string `json:"source"`
}

// isPathWithin checks if the resolved path is within the allowed directory.
// Both paths must already be resolved to their canonical form (via filepath.EvalSymlinks).
// This prevents directory traversal attacks.
func isPathWithin(allowedDir, resolvedPath string) bool {
	rel, err := filepath.Rel(allowedDir, resolvedPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveSource resolves a path relative to the ledger directory. An empty path is the
// ledger file itself. Only ledger files inside the directory tree are allowed, after
// resolving symlinks.
func (s *Server) resolveSource(name string) (string, error) {
	root := s.svc.Filename()
	if name == "" {
		return root, nil
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("access denied: file must be relative to the ledger directory")
	}
	if !loader.IsLedgerFile(name) {
		return "", fmt.Errorf("access denied: not a ledger file")
	}

	allowedDir, err := filepath.EvalSymlinks(filepath.Dir(root))
	if err != nil {
		return "", fmt.Errorf("invalid ledger directory: %w", err)
	}
	path := filepath.Join(filepath.Dir(root), filepath.FromSlash(name))

	resolvedPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("access denied: invalid path")
	}
	if !isPathWithin(allowedDir, resolvedPath) {
		return "", fmt.Errorf("access denied: file outside ledger directory")
	}
	return resolvedPath, nil
}

// handleGetSource handles GET requests to /api/source.
// Returns the content of the ledger file, or of the ledger file named by the file
// query parameter relative to the ledger directory.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	filename, err := s.resolveSource(name)
	if errors.Is(err, os.ErrNotExist) {
		writeJSONError(w, http.StatusNotFound, "not_found", "File not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, http.StatusNotFound, "not_found", "File not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read file")
		return
	}

	if name == "" {
		name = filepath.Base(filename)
	}
	writeJSONResponse(w, &SourceResponse{File: name, Source: string(content)})
}
