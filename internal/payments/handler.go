package payments

import (
	"encoding/json"
	"net/http"

	"busway/internal/bookings/service"
	apperrors "busway/pkg/errors"
	httputil "busway/pkg/http"
	"busway/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// PaymentHandler receives gateway webhooks over HTTP.
type PaymentHandler struct {
	bookings service.BookingService
	log      *logger.Logger
}

func NewPaymentHandler(bookings service.BookingService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		bookings: bookings,
		log:      log,
	}
}

func (h *PaymentHandler) Report(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var notification GatewayNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		h.writeError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	outcome, err := MapNotification(notification)
	if err != nil {
		h.log.Warn("Rejected gateway notification",
			"order_code", notification.OrderCode, "status", notification.Status, "error", err)
		h.writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}

	booking, err := h.bookings.ReportPayment(r.Context(), outcome)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Report", "error", err)
	}
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Report", "error", writeErr)
	}
}

func (h *PaymentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/payments/report", h.Report)
}
