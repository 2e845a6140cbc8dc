package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/DarkMonkDev/witchcityrope-availability/internal/domain"
	"github.com/DarkMonkDev/witchcityrope-availability/internal/dto"
)

// stubAvailabilityService returns canned responses for handler tests
type stubAvailabilityService struct {
	eventResp  *dto.EventAvailabilityResponse
	ticketResp *dto.TicketTypeAvailabilityResponse
	err        error
}

func (s *stubAvailabilityService) GetEventAvailability(ctx context.Context, eventID string) (*dto.EventAvailabilityResponse, error) {
	return s.eventResp, s.err
}

func (s *stubAvailabilityService) GetTicketTypeAvailability(ctx context.Context, eventID, ticketTypeID string) (*dto.TicketTypeAvailabilityResponse, error) {
	return s.ticketResp, s.err
}

func setupAvailabilityRouter(h *AvailabilityHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/events/:id/availability", h.GetEventAvailability)
	router.GET("/events/:id/ticket-types/:ticketTypeId/availability", h.GetTicketTypeAvailability)
	return router
}

func TestAvailabilityHandler_GetEventAvailability(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubAvailabilityService
		wantStatus int
		wantCode   string
	}{
		{
			name: "ok",
			svc: &stubAvailabilityService{eventResp: &dto.EventAvailabilityResponse{
				EventID: "evt-1",
				Sessions: []dto.SessionAvailabilityResponse{
					{SessionID: "sat", Identifier: "SAT", Capacity: 10, Sold: 4, Available: 6},
				},
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "event not found",
			svc:        &stubAvailabilityService{err: domain.ErrEventNotFound},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			// Corrupt session references surface as an internal failure,
			// never as a zero-availability business answer.
			name:       "foreign session reference",
			svc:        &stubAvailabilityService{err: domain.ErrForeignSession},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DATA_INTEGRITY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupAvailabilityRouter(NewAvailabilityHandler(tt.svc))

			req, _ := http.NewRequest(http.MethodGet, "/events/evt-1/availability", nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, resp.Code, resp.Body.String())
			}
			if tt.wantCode != "" {
				var body dto.ErrorResponse
				if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to parse error body: %v", err)
				}
				if body.Code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
				}
			}
		})
	}
}

func TestAvailabilityHandler_GetTicketTypeAvailability(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router := setupAvailabilityRouter(NewAvailabilityHandler(&stubAvailabilityService{
			ticketResp: &dto.TicketTypeAvailabilityResponse{
				TicketTypeID: "tt-1",
				Name:         "Weekend Pass",
				Available:    3,
				Purchasable:  true,
			},
		}))

		req, _ := http.NewRequest(http.MethodGet, "/events/evt-1/ticket-types/tt-1/availability", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		var body dto.TicketTypeAvailabilityResponse
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse body: %v", err)
		}
		if body.Available != 3 || !body.Purchasable {
			t.Errorf("unexpected payload: %+v", body)
		}
	})

	t.Run("ticket type not found", func(t *testing.T) {
		router := setupAvailabilityRouter(NewAvailabilityHandler(&stubAvailabilityService{err: domain.ErrTicketTypeNotFound}))

		req, _ := http.NewRequest(http.MethodGet, "/events/evt-1/ticket-types/missing/availability", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.Code)
		}
	})
}
