package httptransport

import (
	"context"
	"net/http"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

// employee returns the reviewer behind the request. Routes serving it are
// already behind RequireRole.
func employee(r *http.Request) (id.UserID, error) {
	p, ok := requestcontext.CurrentPrincipal(r.Context())
	if !ok || p.UserID.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "employee identity missing")
	}
	return p.UserID, nil
}

// review runs a reviewer action that needs only the application id and the
// acting employee.
func (h *Handler) review(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, appID id.ApplicationID, by id.UserID) (*models.Application, error)) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	by, err := employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := action(r.Context(), appID, by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// withReason runs a reviewer action that takes a mandatory reason.
func (h *Handler) withReason(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reasonRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := action(r.Context(), appID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// handleAssign assigns the named reviewer, or the caller when none is given.
func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req assignRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reviewer, err := employee(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ReviewerID != "" {
		if reviewer, err = id.ParseUserID(req.ReviewerID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	app, err := h.onboarding.Assign(r.Context(), appID, reviewer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.onboarding.Verify)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.onboarding.Approve)
}

func (h *Handler) handleRequestMoreInfo(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.onboarding.RequestMoreInfo)
}

func (h *Handler) handleFlag(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.onboarding.Flag)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.onboarding.Reject)
}

func (h *Handler) handleMarkForDeletion(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(ctx context.Context, appID id.ApplicationID, _ id.UserID) (*models.Application, error) {
		return h.onboarding.MarkForDeletion(ctx, appID)
	})
}

func (h *Handler) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(ctx context.Context, appID id.ApplicationID, _ id.UserID) (*models.Application, error) {
		return h.onboarding.Anonymize(ctx, appID)
	})
}
