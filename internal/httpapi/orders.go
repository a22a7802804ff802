package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"nightlife/internal/app/orders"
	"nightlife/internal/logging"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

type webhookRequest struct {
	DeliveryID string             `json:"deliveryId"`
	OrderID    string             `json:"orderId"`
	Status     models.OrderStatus `json:"status"`
	Payment    map[string]string  `json:"payment"`
}

type webhookResponse struct {
	Duplicate bool          `json:"duplicate"`
	Changed   bool          `json:"changed"`
	Order     *models.Order `json:"order,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	buyer, ok := s.optionalPrincipal(w, r)
	if !ok {
		return
	}

	var req orders.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	order, err := s.orders.Create(r.Context(), buyer, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A notified waitlist member has now used their hold.
	if order.UserEmail != "" {
		err := s.waitlist.MarkPurchased(r.Context(), order.EventID, order.UserEmail)
		if err != nil && !errors.Is(err, store.ErrWaitlistEntryNotFound) {
			logging.FromContext(r.Context()).Warn().Err(err).
				Str("order_id", order.ID).
				Msg("mark waitlist purchase failed")
		}
	}

	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.optionalPrincipal(w, r)
	if !ok {
		return
	}

	order, err := s.orders.Cancel(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "payment webhook is not configured"})
		return
	}
	provided := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.webhookSecret)) != 1 {
		s.metrics.WebhookDelivery("rejected")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid webhook secret"})
		return
	}

	var req webhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.DeliveryID = strings.TrimSpace(req.DeliveryID)
	if req.DeliveryID == "" || strings.TrimSpace(req.OrderID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "deliveryId and orderId are required"})
		return
	}
	if !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown order status"})
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx).With().
		Str("delivery_id", req.DeliveryID).
		Str("order_id", req.OrderID).
		Logger()

	first, err := s.deliveries.Claim(ctx, req.DeliveryID, deliveryTTL)
	if err != nil {
		s.metrics.WebhookDelivery("failed")
		writeError(w, r, err)
		return
	}
	if !first {
		s.metrics.WebhookDelivery("duplicate")
		log.Info().Msg("duplicate webhook delivery ignored")
		writeJSON(w, http.StatusOK, webhookResponse{Duplicate: true})
		return
	}

	order, changed, err := s.orders.UpdateStatus(ctx, req.OrderID, req.Status, req.Payment)
	if err != nil {
		// Forget the delivery so the provider's retry is processed.
		if relErr := s.deliveries.Release(ctx, req.DeliveryID); relErr != nil {
			log.Error().Err(relErr).Msg("release webhook delivery failed")
		}
		s.metrics.WebhookDelivery("failed")
		writeError(w, r, err)
		return
	}

	outcome := "applied"
	if !changed {
		outcome = "unchanged"
	}
	s.metrics.WebhookDelivery(outcome)
	log.Info().Str("status", string(order.Status)).Bool("changed", changed).Msg("webhook processed")

	writeJSON(w, http.StatusOK, webhookResponse{Changed: changed, Order: order})
}
