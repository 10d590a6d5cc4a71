package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
)

const maxBodyBytes = 1 << 20

type startAnalysisRequest struct {
	Depth      models.Depth       `json:"depth"`
	Frameworks []models.Framework `json:"frameworks"`
}

type startAnalysisResponse struct {
	RunID string `json:"runId"`
}

func actor(r *http.Request) (models.Actor, error) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		return models.Actor{}, apperror.Internal(apperror.CodeInternal, "request is not authenticated", nil)
	}
	return a, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.Validation("invalid request body: %v", err)
	}
	return nil
}

// POST /api/v1/snapshots/{snapshotID}/analyses
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	var body startAnalysisRequest
	if err := decode(w, r, &body); err != nil {
		return err
	}
	if body.Depth == "" {
		body.Depth = s.defaultDepth
	}

	runID, err := s.analyzer.StartAnalysis(r.Context(), chi.URLParam(r, "snapshotID"), body.Frameworks, body.Depth, a)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusAccepted, startAnalysisResponse{RunID: runID})
	return nil
}

// GET /api/v1/analyses/{runID}
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	run, err := s.analyzer.GetAnalysisStatus(r.Context(), chi.URLParam(r, "runID"), a.OrganizationID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, run)
	return nil
}

// GET /api/v1/snapshots/{snapshotID}/findings?page=&limit=&status=&confidenceLevel=&framework=
func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := s.findings.GetFindings(r.Context(), chi.URLParam(r, "snapshotID"), a.OrganizationID, findings.Query{
		Status:          q.Get("status"),
		ConfidenceLevel: q.Get("confidenceLevel"),
		Framework:       q.Get("framework"),
		Page:            page,
		Limit:           limit,
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, result)
	return nil
}

// GET /api/v1/snapshots/{snapshotID}/findings/summary
func (s *Server) handleFindingsSummary(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	summary, err := s.findings.GetFindingsSummary(r.Context(), chi.URLParam(r, "snapshotID"), a.OrganizationID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, summary)
	return nil
}

// DELETE /api/v1/snapshots/{snapshotID}/findings
func (s *Server) handleDeleteFindings(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	deleted, err := s.findings.DeleteSnapshotFindings(r.Context(), chi.URLParam(r, "snapshotID"), a.OrganizationID, a.UserID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
	return nil
}

// GET /api/v1/snapshots/{snapshotID}/tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	tasks, err := s.findings.ListTasks(r.Context(), chi.URLParam(r, "snapshotID"), a.OrganizationID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	return nil
}

// GET /api/v1/findings/{findingID}
func (s *Server) handleGetFinding(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	f, err := s.findings.GetFindingByID(r.Context(), chi.URLParam(r, "findingID"), a.OrganizationID)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, f)
	return nil
}

// POST /api/v1/findings/{findingID}/review
func (s *Server) handleReviewFinding(w http.ResponseWriter, r *http.Request) error {
	a, err := actor(r)
	if err != nil {
		return err
	}

	var review findings.Review
	if err := decode(w, r, &review); err != nil {
		return err
	}

	f, err := s.findings.ReviewFinding(r.Context(), chi.URLParam(r, "findingID"), a.OrganizationID, a.UserID, review)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, f)
	return nil
}
