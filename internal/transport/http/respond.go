package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	Status      string              `json:"status"`
	Claimant    string              `json:"claimant,omitempty"`
	AmountMinor int64               `json:"amount_minor"`
	Items       []orderItemResponse `json:"items,omitempty"`
	Address     string              `json:"address,omitempty"`
	ExternalRef string              `json:"external_ref,omitempty"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type timelineEventResponse struct {
	OrderID  string    `json:"order_id"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderItemResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			Name:       item.Name,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return orderResponse{
		ID:          order.ID,
		TenantID:    order.TenantID,
		Status:      string(order.Status),
		Claimant:    order.Claimant,
		AmountMinor: order.AmountMinor,
		Items:       items,
		Address:     order.Address,
		ExternalRef: order.ExternalRef,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}
