package http

import (
	"encoding/json"
	"net/http"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

type paymentWebhookRequest struct {
	ProviderEventID string `json:"provider_event_id"`
	ExternalRef     string `json:"external_ref"`
	Status          string `json:"status"`
}

// paymentWebhookHandler принимает уведомления провайдера. Бизнес-отказы
// (дубликат, неизвестный external_ref, конфликт статусов) всегда
// подтверждаются 200, чтобы провайдер не зацикливал повторные доставки.
// 5xx возвращается только при отказе хранилища.
func (s *Server) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	err := s.reconciler.OnNotification(domain.PaymentNotification{
		ProviderEventID: req.ProviderEventID,
		ExternalRef:     req.ExternalRef,
		ReportedStatus:  req.Status,
	})
	if err != nil {
		s.logger.WithError(err).Error("webhook processing failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
