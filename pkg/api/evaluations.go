package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/db"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/deal"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pipeline"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

// EvaluationsHandler handles evaluation endpoints.
type EvaluationsHandler struct {
	svc *underwriter.Service
}

// NewEvaluationsHandler creates a new EvaluationsHandler.
func NewEvaluationsHandler(svc *underwriter.Service) *EvaluationsHandler {
	return &EvaluationsHandler{svc: svc}
}

// StatementRequest is one statement in raw record form.
type StatementRequest struct {
	Source       string       `json:"source"`
	Transactions []txn.Record `json:"transactions"`
}

// EvaluationRequest is the body of POST /api/v1/evaluations.
type EvaluationRequest struct {
	Statements []StatementRequest `json:"statements"`
	Applicant  deal.Applicant     `json:"applicant"`
	NoSave     bool               `json:"no_save"`
}

// EvaluationResponse wraps a result with the records skipped while parsing.
type EvaluationResponse struct {
	*underwriter.Result
	ParseIssues []txn.ParseIssue `json:"parse_issues"`
}

// EvaluationsListResponse represents the response for GET /api/v1/evaluations.
type EvaluationsListResponse struct {
	Evaluations []db.RunRecord `json:"evaluations"`
}

// Create handles POST /api/v1/evaluations.
// New runs answer 201; a reused or unsaved run answers 200.
func (h *EvaluationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	in := pipeline.Input{Applicant: req.Applicant}
	issues := []txn.ParseIssue{}
	for i, s := range req.Statements {
		source := s.Source
		if source == "" {
			source = "statement-" + strconv.Itoa(i+1)
		}
		transactions, skipped := txn.ParseRecords(s.Transactions, source)
		issues = append(issues, skipped...)
		in.Statements = append(in.Statements, pipeline.Statement{Source: source, Transactions: transactions})
	}

	result, err := h.svc.Evaluate(r.Context(), in, underwriter.EvaluateOptions{NoSave: req.NoSave})
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to evaluate deal")
		return
	}

	status := http.StatusOK
	if result.RunID != "" && !result.Reused {
		status = http.StatusCreated
	}
	writeJSON(w, status, EvaluationResponse{Result: result, ParseIssues: issues})
}

// List handles GET /api/v1/evaluations.
func (h *EvaluationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list evaluations", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to list evaluations")
		return
	}

	writeJSON(w, http.StatusOK, EvaluationsListResponse{Evaluations: runs})
}

// Get handles GET /api/v1/evaluations/{id}.
func (h *EvaluationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Input handles GET /api/v1/evaluations/{id}/input.
func (h *EvaluationsHandler) Input(w http.ResponseWriter, r *http.Request) {
	in, err := h.svc.Input(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// Delete handles DELETE /api/v1/evaluations/{id}.
func (h *EvaluationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EvaluationsHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, underwriter.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Evaluation not found")
		return
	}
	slog.Error("evaluation lookup failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to load evaluation")
}
