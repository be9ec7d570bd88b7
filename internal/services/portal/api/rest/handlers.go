package rest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/domain"
	"github.com/apacbi/budgetportal/internal/services/portal/storage"
)

// healthValidateTimeout caps how long the health check waits on the BI API.
const healthValidateTimeout = 5 * time.Second

func partitionFromPath(r *http.Request) (domain.Partition, error) {
	p := domain.Partition{
		UserID:       r.PathValue("user_id"),
		BusinessUnit: r.PathValue("business_unit"),
	}
	return p, p.Validate()
}

func (h *Handler) handleAllData(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.FetchAll(r.Context())
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "load records", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(records),
		"data":    viewsOf(records),
	})
}

type loginRequest struct {
	UserID       string `json:"user_id"`
	BusinessUnit string `json:"business_unit"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	token, err := h.sessions.Login(r.Context(), req.UserID, req.BusinessUnit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"session_token": token.Value,
		"user_id":       token.UserID,
		"business_unit": token.BusinessUnit,
		"expires_at":    token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handlePartitionData(w http.ResponseWriter, r *http.Request) {
	p, err := partitionFromPath(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	records, err := h.store.FetchPartition(r.Context(), p)
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "load records", err))
		return
	}
	if len(records) == 0 && h.hydrateOnMiss {
		// Seeding is a mutation; it runs inside the partition lock like any
		// other, so two concurrent misses cannot race their inserts.
		storeCtx := context.WithoutCancel(r.Context())
		err = h.locks.Do(p, func() error {
			var hydrateErr error
			records, hydrateErr = h.hydrate(storeCtx, p)
			return hydrateErr
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
	}
	if len(records) == 0 {
		h.respondError(w, apperrors.New(apperrors.CodeNotFound, "no records for "+p.String()))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    viewsOf(records),
	})
}

// hydrate seeds an empty partition from the BI dataset and re-reads it.
// Callers hold the partition lock; the re-check below serves requests that
// lost the race to a hydration that already completed.
func (h *Handler) hydrate(ctx context.Context, p domain.Partition) ([]domain.BudgetRecord, error) {
	records, err := h.store.FetchPartition(ctx, p)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load records", err)
	}
	if len(records) > 0 {
		return records, nil
	}

	rows, err := h.reader.Query(ctx, p.UserID, p.BusinessUnit)
	if err != nil {
		// A dataset miss is indistinguishable from an empty partition here;
		// keep the local empty result rather than failing the read.
		log.Printf("hydration query for %s failed: %v", p, err)
		return nil, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := h.store.InsertRecords(ctx, p, rows); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "seed records", err)
	}
	log.Printf("hydrated %d records for %s", len(rows), p)

	records, err = h.store.FetchPartition(ctx, p)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load records", err)
	}
	return records, nil
}

type updateRequest struct {
	UserID       string              `json:"user_id"`
	BusinessUnit string              `json:"business_unit"`
	Updates      []domain.FieldPatch `json:"updates"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	p := domain.Partition{UserID: req.UserID, BusinessUnit: req.BusinessUnit}
	if err := h.authorizePartition(r.Context(), p); err != nil {
		h.respondError(w, err)
		return
	}
	if len(req.Updates) == 0 {
		h.respondError(w, apperrors.New(apperrors.CodeValidation, "updates are required"))
		return
	}

	// The mutation must not be aborted by a client disconnect once the
	// partition lock is held.
	storeCtx := context.WithoutCancel(r.Context())
	var updated []int64
	err := h.locks.Do(p, func() error {
		var applyErr error
		updated, applyErr = h.store.ApplyFieldUpdates(storeCtx, p, req.Updates)
		return applyErr
	})
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "apply updates", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"updated_records": len(updated),
		"updated_ids":     updated,
		"message":         fmt.Sprintf("updated %d records", len(updated)),
	})
}

type submitRequest struct {
	UserID       string `json:"user_id"`
	BusinessUnit string `json:"business_unit"`
}

// decodeSubmitRequest accepts both JSON and form bodies; existing grid
// clients post the submit partition as form fields.
func decodeSubmitRequest(r *http.Request) (submitRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return submitRequest{}, apperrors.Wrap(apperrors.CodeValidation, "invalid form body", err)
		}
		return submitRequest{
			UserID:       r.PostFormValue("user_id"),
			BusinessUnit: r.PostFormValue("business_unit"),
		}, nil
	}
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		return submitRequest{}, err
	}
	return req, nil
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmitRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	p := domain.Partition{UserID: req.UserID, BusinessUnit: req.BusinessUnit}
	if err := h.authorizePartition(r.Context(), p); err != nil {
		h.respondError(w, err)
		return
	}

	storeCtx := context.WithoutCancel(r.Context())
	var batch domain.SubmissionBatch
	err = h.locks.Do(p, func() error {
		var submitErr error
		batch, submitErr = h.store.MarkSubmitted(storeCtx, p)
		return submitErr
	})
	if err != nil {
		if errors.Is(err, storage.ErrNothingToSubmit) {
			h.respondError(w, err)
			return
		}
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "submit records", err))
		return
	}

	// Records are committed; a full publish queue only delays delivery.
	if _, err := h.coordinator.Schedule(batch); err != nil {
		log.Printf("schedule publish for %s failed: %v", p, err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"submitted_records": len(batch.Rows),
		"submission_time":   batch.SubmissionTime.Format(time.RFC3339),
		"message":           fmt.Sprintf("submitted %d records", len(batch.Rows)),
	})
}

// authorizePartition checks the request partition and binds it to the
// session identity on the context.
func (h *Handler) authorizePartition(ctx context.Context, p domain.Partition) error {
	if err := p.Validate(); err != nil {
		return err
	}
	identity, ok := callerIdentity(ctx)
	if !ok {
		return apperrors.New(apperrors.CodeSessionInvalid, "missing session identity")
	}
	if identity.UserID != p.UserID {
		return apperrors.New(apperrors.CodeSessionInvalid, "session does not match request user")
	}
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := false
	if h.validator != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthValidateTimeout)
		connected = h.validator.Validate(ctx)
		cancel()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"powerbi_connected": connected,
		"timestamp":         h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	p, err := partitionFromPath(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	total, err := h.store.CountPartition(r.Context(), p)
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "count records", err))
		return
	}
	submitted, err := h.store.CountSubmitted(r.Context(), p)
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "count submitted", err))
		return
	}
	latest, err := h.store.LatestSubmission(r.Context(), p)
	if err != nil {
		h.respondError(w, apperrors.Wrap(apperrors.CodeStorage, "load latest submission", err))
		return
	}

	completion := 0.0
	if total > 0 {
		completion = float64(submitted) / float64(total) * 100
	}
	var lastSubmission *string
	if latest != nil {
		formatted := latest.UTC().Format(time.RFC3339)
		lastSubmission = &formatted
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"user_id":               p.UserID,
		"business_unit":         p.BusinessUnit,
		"total_records":         total,
		"submitted_records":     submitted,
		"pending_records":       total - submitted,
		"completion_percentage": completion,
		"last_submission":       lastSubmission,
	})
}
