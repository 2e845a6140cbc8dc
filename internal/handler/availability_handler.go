package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

// AvailabilityHandler handles read-only capacity queries
type AvailabilityHandler struct {
	availabilityService service.AvailabilityService
}

// NewAvailabilityHandler creates a new availability handler
func NewAvailabilityHandler(availabilityService service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availabilityService: availabilityService}
}

// GetEventAvailability handles GET /events/:id/availability
func (h *AvailabilityHandler) GetEventAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.availability.get_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.availabilityService.GetEventAvailability(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetTicketTypeAvailability handles GET /events/:id/ticket-types/:ticketTypeId/availability
func (h *AvailabilityHandler) GetTicketTypeAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.availability.get_ticket_type")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	ticketTypeID := c.Param("ticketTypeId")

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_type_id", ticketTypeID),
	)

	result, err := h.availabilityService.GetTicketTypeAvailability(ctx, eventID, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// handleError maps domain errors to HTTP responses. A foreign session
// reference is a data-integrity failure and surfaces as 500, never 404.
func (h *AvailabilityHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrForeignSession):
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "DATA_INTEGRITY",
		})
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_FAILED",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
