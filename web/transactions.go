package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/audit"
	"github.com/robinvdvleuten/beancount-mcp/formatter"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

// maxBodySize limits request bodies of queries and submissions.
const maxBodySize = 1 << 20

// QueryRequest is the JSON request body of the query endpoint.
type QueryRequest struct {
	Query string `json:"query"`
}

// handleQuery handles POST requests to /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var request QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	result, err := s.svc.RunQuery(r.Context(), request.Query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, result)
}

// SubmitRequest is the JSON request body of the submission endpoint. Exactly one of
// Transaction and Text is set.
type SubmitRequest struct {
	Transaction *service.TransactionDraft `json:"transaction,omitempty"`
	Text        string                    `json:"text,omitempty"`
}

// handleSubmitTransaction handles POST requests to /api/transactions.
// Accepted transactions are appended to the ledger file and announced to event
// stream clients.
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var request SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	var (
		result *service.Result
		err    error
	)
	hasText := strings.TrimSpace(request.Text) != ""
	switch {
	case request.Transaction != nil && hasText:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "set either transaction or text, not both")
		return
	case request.Transaction != nil:
		result, err = s.svc.SubmitTransaction(r.Context(), request.Transaction)
	case hasText:
		result, err = s.svc.SubmitText(r.Context(), request.Text)
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "transaction or text is required")
		return
	}
	if err != nil {
		s.logger.Info("submission rejected", zap.String("kind", service.ErrorKind(err)), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	s.Broadcast("submitted " + result.TransactionID)
	writeJSON(w, http.StatusCreated, result)
}

// TransactionResponse is the JSON response structure for a transaction lookup.
type TransactionResponse struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Text string `json:"text"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// handleGetTransaction handles GET requests to /api/transactions/{id}.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	// IDs of duplicate transactions carry a "#n" suffix, which arrives escaped.
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid transaction ID")
		return
	}
	txn, ok := s.svc.Transaction(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", "Transaction not found")
		return
	}

	writeJSONResponse(w, &TransactionResponse{
		ID:   txn.ID,
		Date: txn.Date().String(),
		Text: formatter.FormatTransaction(txn.Directive),
		File: txn.Directive.Pos.Filename,
		Line: txn.Directive.Pos.Line,
	})
}

// handleGetSubmission handles GET requests to /api/submissions/{id}.
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		writeJSONError(w, http.StatusNotFound, "not_found", "Submission index is disabled")
		return
	}

	sub, err := s.submissions.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Submission not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to look up submission", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to look up submission")
		return
	}
	writeJSONResponse(w, sub)
}
