package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/service"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/middleware"
	"github.com/DarkMonkDev/witchcityrope-availability/pkg/telemetry"
)

// EnrollmentHandler handles enrollment HTTP requests
type EnrollmentHandler struct {
	enrollmentService service.EnrollmentService
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollmentService service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService}
}

// CreateEnrollment handles POST /events/:id/enrollments
func (h *EnrollmentHandler) CreateEnrollment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextKeyUserID)
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	eventID := c.Param("id")

	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	result, err := h.enrollmentService.CreateEnrollment(ctx, userID, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("enrollment_id", result.ID),
		attribute.String("status", result.Status),
	)
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, result)
}

// GetEnrollment handles GET /enrollments/:id
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextKeyUserID)
	enrollmentID := c.Param("id")
	isStaff := middleware.HasRole(c, middleware.RoleStaff)

	span.SetAttributes(attribute.String("enrollment_id", enrollmentID))

	result, err := h.enrollmentService.GetEnrollment(ctx, enrollmentID, userID, isStaff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetMyEnrollments handles GET /users/me/enrollments
func (h *EnrollmentHandler) GetMyEnrollments(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.get_mine")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextKeyUserID)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	span.SetAttributes(attribute.String("user_id", userID))

	result, err := h.enrollmentService.GetUserEnrollments(ctx, userID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetEventRoster handles GET /events/:id/roster
func (h *EnrollmentHandler) GetEventRoster(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.get_roster")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.enrollmentService.GetEventRoster(ctx, eventID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// CancelEnrollment handles POST /enrollments/:id/cancel
func (h *EnrollmentHandler) CancelEnrollment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString(middleware.ContextKeyUserID)
	enrollmentID := c.Param("id")
	isStaff := middleware.HasRole(c, middleware.RoleStaff)

	// An empty body is fine for cancellation.
	var req dto.CancelEnrollmentRequest
	_ = c.ShouldBindJSON(&req)

	span.SetAttributes(attribute.String("enrollment_id", enrollmentID))

	result, err := h.enrollmentService.CancelEnrollment(ctx, enrollmentID, userID, isStaff, req.Reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// CheckIn handles POST /enrollments/:id/check-in
func (h *EnrollmentHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.check_in")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	staffUserID := c.GetString(middleware.ContextKeyUserID)
	enrollmentID := c.Param("id")

	span.SetAttributes(
		attribute.String("enrollment_id", enrollmentID),
		attribute.String("staff_user_id", staffUserID),
	)

	result, err := h.enrollmentService.CheckIn(ctx, enrollmentID, staffUserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// PromoteWaitlist handles POST /events/:id/waitlist/promote
func (h *EnrollmentHandler) PromoteWaitlist(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.enrollment.promote_waitlist")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.enrollmentService.PromoteWaitlist(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	if result == nil {
		span.SetStatus(codes.Ok, "no eligible candidate")
		c.JSON(http.StatusOK, gin.H{"promoted": nil})
		return
	}

	span.SetAttributes(attribute.String("enrollment_id", result.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, gin.H{"promoted": result})
}

// handleError maps domain errors to HTTP responses
func (h *EnrollmentHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateEnrollment):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "DUPLICATE_ENROLLMENT",
			Message: "Cancel the existing enrollment before creating a new one",
		})
	case errors.Is(err, domain.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_CANCELLED",
		})
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_CHECKED_IN",
		})
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case domain.IsForbiddenError(err):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "FORBIDDEN",
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
