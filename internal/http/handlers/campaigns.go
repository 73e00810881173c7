package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campaignforge/internal/domain"
	"campaignforge/internal/infra"
)

const maxEnqueueBody = 64 << 10

type enqueueRequest struct {
	Mode            string `json:"mode"`
	BrandName       string `json:"brandName"`
	CampaignID      string `json:"campaignId"`
	BrainID         string `json:"brainId"`
	BrandContext    string `json:"brandContext"`
	KeywordContext  string `json:"keywordContext"`
	StrategyContext string `json:"strategyContext"`
}

func (req enqueueRequest) input() domain.JobInput {
	return domain.JobInput{
		BrandName:       strings.TrimSpace(req.BrandName),
		CampaignID:      strings.TrimSpace(req.CampaignID),
		BrainID:         strings.TrimSpace(req.BrainID),
		BrandContext:    strings.TrimSpace(req.BrandContext),
		KeywordContext:  strings.TrimSpace(req.KeywordContext),
		StrategyContext: strings.TrimSpace(req.StrategyContext),
	}
}

type enqueueResponse struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

// EnqueueCampaign validates the request and writes a queued job.
func (a *App) EnqueueCampaign(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEnqueueBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	input := req.input()
	if err := input.Validate(mode); err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.Jobs.Create(r.Context(), input, mode)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	infra.LoggerOrDiscard(a.Logger).Info().Str("job_id", id).Str("mode", string(mode)).Msg("http: campaign queued")
	w.Header().Set("Location", fmt.Sprintf("/v1/campaigns/%s", id))
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: id, Status: domain.JobStatusQueued})
}

// GetCampaign returns the job record.
func (a *App) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "campaign not found")
		return
	}
	job, err := a.Jobs.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "campaign not found")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}
