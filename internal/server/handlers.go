package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/pipeline"
)

// Query parameters accepted by the pipeline search endpoint.
const (
	ParamCollectorItemID = "collectorItemId"
	ParamBeginDate       = "beginDate"
	ParamEndDate         = "endDate"
)

const maxIngestBody = 1 << 16

// Handlers serves the pipeline API.
type Handlers struct {
	svc    *pipeline.Service
	logger *slog.Logger
	now    func() time.Time
}

func NewHandlers(svc *pipeline.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger, now: time.Now}
}

// Register mounts the API routes on r.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/stages", h.handleStages)
	r.Get("/api/pipeline", h.handleSearch)
	r.Post("/api/pipeline/{collectorItemId}/environments/{environment}/commits", h.handleRecordCommit)
}

// PipelineResponse is one element of the search response.
type PipelineResponse struct {
	CollectorItemID string                      `json:"collectorItemId"`
	Stages          map[string][]CommitResponse `json:"stages"`
	UnmappedStages  []string                    `json:"unmappedStages"`
	Error           *ErrorBody                  `json:"error,omitempty"`
}

// CommitResponse is a reconciled commit with epoch-millisecond timestamps.
type CommitResponse struct {
	RevisionID          string           `json:"revisionId"`
	ProcessedTimestamps map[string]int64 `json:"processedTimestamps"`
}

type ErrorBody struct {
	Type    domain.ErrorType `json:"type"`
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	Param   string           `json:"param,omitempty"`
}

type StageResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Ordinal int    `json:"ordinal"`
}

type RecordCommitRequest struct {
	RevisionID string `json:"revisionId"`
	Timestamp  *int64 `json:"timestamp,omitempty"` // epoch millis; defaults to now
}

type RecordCommitResponse struct {
	CollectorItemID string `json:"collectorItemId"`
	Environment     string `json:"environment"`
	RevisionID      string `json:"revisionId"`
	Recorded        bool   `json:"recorded"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleStages(w http.ResponseWriter, r *http.Request) {
	stages := h.svc.Registry().Stages()
	out := make([]StageResponse, len(stages))
	for i, s := range stages {
		out[i] = StageResponse{Name: s.Name, Type: string(s.Type), Ordinal: i}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, apiErr := parseSearchRequest(r)
	if apiErr != nil {
		AddError(r.Context(), apiErr)
		writeError(w, apiErr)
		return
	}
	AddLogField(r.Context(), "collector_item_ids", strings.Join(req.PipelineIDs, ","))

	results, err := h.svc.Search(r.Context(), req)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, domain.ErrServer("pipeline search failed"))
		return
	}

	out := make([]PipelineResponse, len(results))
	for i, res := range results {
		out[i] = NewPipelineResponse(res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleRecordCommit(w http.ResponseWriter, r *http.Request) {
	pipelineID := chi.URLParam(r, "collectorItemId")
	environment := chi.URLParam(r, "environment")

	var body RecordCommitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody)).Decode(&body); err != nil {
		writeError(w, domain.ErrInvalidRequest("request body must be a JSON object"))
		return
	}

	at := h.now()
	if body.Timestamp != nil {
		at = time.UnixMilli(*body.Timestamp)
	}

	recorded, err := h.svc.RecordCommit(r.Context(), pipelineID, environment, body.RevisionID, at)
	if err != nil {
		AddError(r.Context(), err)
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			writeError(w, apiErr)
			return
		}
		writeError(w, domain.ErrServer("failed to record commit"))
		return
	}

	status := http.StatusOK
	if recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, RecordCommitResponse{
		CollectorItemID: pipelineID,
		Environment:     environment,
		RevisionID:      body.RevisionID,
		Recorded:        recorded,
	})
}

func parseSearchRequest(r *http.Request) (pipeline.SearchRequest, *domain.APIError) {
	query := r.URL.Query()

	var req pipeline.SearchRequest
	for _, raw := range query[ParamCollectorItemID] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.PipelineIDs = append(req.PipelineIDs, id)
			}
		}
	}
	if len(req.PipelineIDs) == 0 {
		return req, domain.ErrInvalidRequest("at least one collectorItemId is required").
			WithCode(domain.ErrorCodeMissingPipeline).WithParam(ParamCollectorItemID)
	}

	var apiErr *domain.APIError
	if req.Begin, apiErr = parseMillis(query.Get(ParamBeginDate), ParamBeginDate); apiErr != nil {
		return req, apiErr
	}
	if req.End, apiErr = parseMillis(query.Get(ParamEndDate), ParamEndDate); apiErr != nil {
		return req, apiErr
	}
	return req, nil
}

func parseMillis(raw, param string) (*time.Time, *domain.APIError) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidRequest(param+" must be epoch milliseconds").
			WithCode(domain.ErrorCodeInvalidDate).WithParam(param)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// NewPipelineResponse renders one search result in the API shape.
func NewPipelineResponse(res pipeline.PipelineResult) PipelineResponse {
	out := PipelineResponse{
		CollectorItemID: res.PipelineID,
		Stages:          map[string][]CommitResponse{},
		UnmappedStages:  []string{},
	}
	if res.Err != nil {
		out.Error = toErrorBody(domain.ToAPIError(res.Err))
		return out
	}

	out.UnmappedStages = append(out.UnmappedStages, res.Report.UnmappedStages...)
	for stage, commits := range res.Report.Stages {
		list := make([]CommitResponse, len(commits))
		for i, c := range commits {
			ts := make(map[string]int64, len(c.StageTimestamps))
			for name, t := range c.StageTimestamps {
				ts[name] = t.UnixMilli()
			}
			list[i] = CommitResponse{RevisionID: c.RevisionID, ProcessedTimestamps: ts}
		}
		out.Stages[stage] = list
	}
	return out
}

func toErrorBody(e *domain.APIError) *ErrorBody {
	return &ErrorBody{Type: e.Type, Code: e.Code, Message: e.Message, Param: e.Param}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, e *domain.APIError) {
	writeJSON(w, e.HTTPStatusCode(), map[string]any{"error": toErrorBody(e)})
}
