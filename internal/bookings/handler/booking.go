package handler

import (
	"encoding/json"
	"net/http"

	"busway/internal/bookings/service"
	apperrors "busway/pkg/errors"
	httputil "busway/pkg/http"
	"busway/pkg/logger"
	"busway/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Claim(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Claim", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Claim(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Claim", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Claim", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *BookingHandler) ListByTrip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookings, err := h.service.ListByTrip(r.Context(), ps.ByName("tripId"))
	if err != nil {
		h.writeError(w, "ListByTrip", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByTrip", "error", err)
	}
}

func (h *BookingHandler) ExtendHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.ExtendHoldRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "ExtendHold", apperrors.InvalidInput("Invalid request body"))
			return
		}
	}

	booking, err := h.service.ExtendHold(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "ExtendHold", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "ExtendHold", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/claim", h.Claim)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.GET("/api/v1/bookings/trip/:tripId", h.ListByTrip)
	router.POST("/api/v1/bookings/id/:id/extend", h.ExtendHold)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
}
