package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"health-assistant/internal/domain"
	"health-assistant/internal/usecase/doctors"
	"health-assistant/internal/usecase/feedback"
)

func (h *Handler) handleDoctors(w http.ResponseWriter, r *http.Request) {
	q := doctors.Query{
		Specialty: strings.TrimSpace(r.URL.Query().Get("specialty")),
		Term:      r.URL.Query().Get("q"),
	}
	res, err := h.doctors.Search(r.Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("doctors: поиск")
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load doctors")
		return
	}
	if res.Doctors == nil {
		res.Doctors = []domain.Doctor{}
	}
	writeJSON(w, http.StatusOK, res)
}

type emergencyResponse struct {
	Notice     string                    `json:"notice"`
	Disclaimer string                    `json:"disclaimer"`
	Contacts   []domain.EmergencyContact `json:"contacts"`
}

func (h *Handler) handleEmergency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, emergencyResponse{
		Notice:     domain.EmergencyNotice,
		Disclaimer: domain.EmergencyDisclaimer,
		Contacts:   domain.EmergencyContacts(),
	})
}

type feedbackRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Rating  int    `json:"rating"`
}

type feedbackResponse struct {
	Message  string          `json:"message"`
	Feedback domain.Feedback `json:"feedback"`
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return
	}
	saved, err := h.feedback.Submit(r.Context(), feedback.Input{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
		Rating:  req.Rating,
		Source:  domain.FeedbackSourceWeb,
	})
	if err != nil {
		if feedback.IsValidation(err) {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("feedback: сохранение")
		writeError(w, http.StatusInternalServerError, codeInternal, feedback.FailureText)
		return
	}
	writeJSON(w, http.StatusCreated, feedbackResponse{Message: feedback.SuccessText, Feedback: saved})
}
