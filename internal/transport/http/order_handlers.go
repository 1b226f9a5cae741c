package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/service/lifecycle"
)

type createOrderRequest struct {
	TenantID string             `json:"tenant_id"`
	Items    []orderItemRequest `json:"items"`
	Address  string             `json:"address"`
}

type orderItemRequest struct {
	Name       string `json:"name"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type claimOrderRequest struct {
	ClaimantID      string `json:"claimant_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

type advanceOrderRequest struct {
	TargetStatus    string `json:"target_status"`
	ExpectedVersion int64  `json:"expected_version"`
}

type cancelOrderRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

type claimResponse struct {
	Outcome  string         `json:"outcome"`
	Claimant string         `json:"claimant,omitempty"`
	Order    *orderResponse `json:"order,omitempty"`
}

func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	items := make([]lifecycle.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, lifecycle.ItemInput{
			Name:       item.Name,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	order, err := s.store.Create(lifecycle.CreateInput{
		TenantID: req.TenantID,
		Items:    items,
		Address:  req.Address,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.WithError(err).Error("create order failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		if domain.IsNotFound(err) {
			s.respondError(w, http.StatusNotFound, "order not found")
			return
		}
		s.logger.WithError(err).Error("get order failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	orders, err := s.store.ListByTenant(tenantID, limit)
	if err != nil {
		s.logger.WithError(err).Error("list orders failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, toOrderResponse(order))
	}
	s.respondJSON(w, http.StatusOK, responses)
}

func (s *Server) claimOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req claimOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	order, won, err := s.store.Claim(orderID, req.ClaimantID, req.ExpectedVersion)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			s.respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrClaimantRequired):
			s.respondError(w, http.StatusBadRequest, "claimant_id is required")
		default:
			s.logger.WithError(err).Error("claim order failed")
			s.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if !won {
		// Проигравший получает конкретный ответ с текущим claimant,
		// а не общий отказ.
		s.respondJSON(w, http.StatusConflict, claimResponse{
			Outcome:  "already_claimed",
			Claimant: order.Claimant,
		})
		return
	}

	resp := toOrderResponse(order)
	s.respondJSON(w, http.StatusOK, claimResponse{
		Outcome:  "claimed",
		Claimant: order.Claimant,
		Order:    &resp,
	})
}

func (s *Server) advanceOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req advanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	s.advanceTo(w, orderID, domain.OrderStatus(req.TargetStatus), req.ExpectedVersion)
}

func (s *Server) cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	s.advanceTo(w, orderID, domain.OrderStatusCancelled, req.ExpectedVersion)
}

func (s *Server) advanceTo(w http.ResponseWriter, orderID string, target domain.OrderStatus, expectedVersion int64) {
	order, err := s.store.Advance(orderID, target, expectedVersion)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			s.respondError(w, http.StatusNotFound, "order not found")
		case domain.IsVersionConflict(err):
			s.respondError(w, http.StatusConflict, "version conflict")
		case domain.IsInvalidTransition(err):
			s.respondError(w, http.StatusUnprocessableEntity, "invalid transition")
		default:
			s.logger.WithError(err).Error("advance order failed")
			s.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) chargeOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	if s.gateway == nil {
		s.respondError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
		return
	}

	order, err := s.store.Get(orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.respondError(w, http.StatusNotFound, "order not found")
			return
		}
		s.logger.WithError(err).Error("get order failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if order.ExternalRef != "" {
		s.respondError(w, http.StatusConflict, "charge already created")
		return
	}

	ref, err := s.gateway.CreateCharge(r.Context(), order.ID, order.AmountMinor)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("create charge failed")
		s.respondError(w, http.StatusBadGateway, "payment provider error")
		return
	}

	updated, err := s.store.AttachExternalRef(order.ID, ref, order.Version)
	if err != nil {
		switch {
		case domain.IsVersionConflict(err):
			s.respondError(w, http.StatusConflict, "version conflict")
		case errors.Is(err, domain.ErrExternalRefAssigned):
			s.respondError(w, http.StatusConflict, "charge already created")
		case errors.Is(err, domain.ErrExternalRefRequired):
			s.respondError(w, http.StatusBadGateway, "payment provider returned empty reference")
		default:
			s.logger.WithError(err).Error("attach external ref failed")
			s.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.respondJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (s *Server) orderTimelineHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	if _, err := s.store.Get(orderID); err != nil {
		if domain.IsNotFound(err) {
			s.respondError(w, http.StatusNotFound, "order not found")
			return
		}
		s.logger.WithError(err).Error("get order failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	events, err := s.store.Timeline(orderID)
	if err != nil {
		s.logger.WithError(err).Error("get timeline failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	responses := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, timelineEventResponse{
			OrderID:  event.OrderID,
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	s.respondJSON(w, http.StatusOK, responses)
}
