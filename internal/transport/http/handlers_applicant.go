package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/application/models"
	"onboarding/internal/onboarding"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// fail writes err as a JSON envelope. Internal failures are logged with
// their cause, which the response never carries.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	personal, contact := req.toModels()
	app, err := h.onboarding.CreateApplication(r.Context(), onboarding.CreateApplicationInput{
		Personal: personal,
		Contact:  contact,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/applications/"+app.ID.String())
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.Get(r.Context(), appID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req sendOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	challenge, err := h.onboarding.SendOTP(r.Context(), appID, models.Channel(req.Channel))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toOTPChallengeResponse(challenge))
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req verifyOTPRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.onboarding.VerifyOTP(r.Context(), appID, models.Channel(req.Channel), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, verifyOTPResponse{
		Application: toApplicationResponse(res.Application),
		Session:     toSessionResponse(res.Session),
	})
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req uploadDocumentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.UploadDocument(r.Context(), appID, onboarding.UploadDocumentInput{
		Kind:        models.DocumentKind(req.Kind),
		StorageKey:  req.StorageKey,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req grantConsentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.GrantConsent(r.Context(), appID, onboarding.GrantConsentInput{
		Type:              models.ConsentType(req.Type),
		Granted:           *req.Granted,
		DisclosureVersion: req.DisclosureVersion,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	consentType, err := models.ParseConsentType(urlParam(r, "consentType"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.RevokeConsent(r.Context(), appID, consentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.Submit(r.Context(), appID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleProvideMoreInfo(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req infoRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.onboarding.ProvideMoreInfo(r.Context(), appID, req.Info)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
