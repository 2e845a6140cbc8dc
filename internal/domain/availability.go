package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Unlimited is the availability reported for a ticket type with no quantity
// cap bundling no capacity-bound sessions.
const Unlimited = math.MaxInt32

// SessionAvailability is the computed capacity picture for one session.
// Sold is the count of non-cancelled enrollments holding the session,
// Available is floored at zero even if a data anomaly pushed Sold past
// Capacity.
type SessionAvailability struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
	Capacity   int    `json:"capacity"`
	Sold       int    `json:"sold"`
	Available  int    `json:"available"`
}

// ComputeSessionAvailability derives per-session remaining capacity from the
// aggregate's non-cancelled enrollments. Pure: the aggregate is not mutated.
//
// An event with no sessions is treated as a single implicit session keyed by
// the event id, governed by the event's flat capacity.
func ComputeSessionAvailability(agg *EventAggregate) map[string]SessionAvailability {
	out := make(map[string]SessionAvailability, len(agg.Sessions)+1)

	if !agg.HasSessions() {
		sold := 0
		for i := range agg.Enrollments {
			if agg.Enrollments[i].IsActive() {
				sold++
			}
		}
		out[agg.Event.ID] = SessionAvailability{
			SessionID:  agg.Event.ID,
			Identifier: agg.Event.ID,
			Capacity:   agg.Event.Capacity,
			Sold:       sold,
			Available:  floorZero(agg.Event.Capacity - sold),
		}
		return out
	}

	for _, s := range agg.Sessions {
		sold := 0
		for i := range agg.Enrollments {
			e := &agg.Enrollments[i]
			if e.IsActive() && e.HoldsSession(s.ID) {
				sold++
			}
		}
		out[s.ID] = SessionAvailability{
			SessionID:  s.ID,
			Identifier: s.Identifier,
			Capacity:   s.Capacity,
			Sold:       sold,
			Available:  floorZero(s.Capacity - sold),
		}
	}
	return out
}

// ComputeTicketTypeAvailability returns how many units of the ticket type can
// still be sold: the minimum of its quantity cap and the availability of
// every session it bundles. A ticket type is never sellable beyond the
// tightest bottleneck among the sessions it unlocks.
//
// A ticket type referencing a session outside the aggregate is a
// data-integrity failure, not a business outcome.
func ComputeTicketTypeAvailability(agg *EventAggregate, tt *TicketType) (int, error) {
	sessions := ComputeSessionAvailability(agg)

	remaining := Unlimited
	if tt.QuantityAvailable != nil {
		remaining = *tt.QuantityAvailable - SoldUnits(agg, tt.ID)
	}

	if len(tt.IncludedSessionIDs) == 0 {
		// Whole-event ticket: bounded by the event's own remaining capacity.
		// Retired sessions are skipped since a new enrollment would not
		// occupy them.
		if agg.HasSessions() {
			for _, s := range agg.Sessions {
				if !s.IsActive {
					continue
				}
				if sa, ok := sessions[s.ID]; ok && sa.Available < remaining {
					remaining = sa.Available
				}
			}
		} else if sa, ok := sessions[agg.Event.ID]; ok && sa.Available < remaining {
			remaining = sa.Available
		}
		return floorZero(remaining), nil
	}

	for _, sid := range tt.IncludedSessionIDs {
		sa, ok := sessions[sid]
		if !ok {
			return 0, fmt.Errorf("%w: ticket type %s, session %s", ErrForeignSession, tt.ID, sid)
		}
		if sa.Available < remaining {
			remaining = sa.Available
		}
	}
	return floorZero(remaining), nil
}

// ConstraintReason returns a human-readable reason when a ticket type cannot
// be sold right now, or "" when it can. Configuration reasons are reported
// before capacity reasons so callers get deterministic messages:
// inactive, then sales window, then the specific sold-out sessions.
func ConstraintReason(agg *EventAggregate, tt *TicketType, now time.Time) (string, error) {
	if !tt.IsActive {
		return "ticket type is inactive", nil
	}
	if !tt.InSalesWindow(now) {
		return "outside sales period", nil
	}

	available, err := ComputeTicketTypeAvailability(agg, tt)
	if err != nil {
		return "", err
	}
	if available > 0 {
		return "", nil
	}

	if tt.QuantityAvailable != nil && *tt.QuantityAvailable-SoldUnits(agg, tt.ID) <= 0 {
		return "quantity cap reached", nil
	}

	sessions := ComputeSessionAvailability(agg)
	var full []string
	for _, sid := range tt.IncludedSessionIDs {
		if sa, ok := sessions[sid]; ok && sa.Available == 0 {
			full = append(full, sa.Identifier)
		}
	}
	if len(full) == 0 {
		return "event is at capacity", nil
	}
	sort.Strings(full)
	return fmt.Sprintf("session(s) at capacity: %s", strings.Join(full, ", ")), nil
}

// SessionsForEnrollment resolves the session set an enrollment occupies:
// the ticket type's bundle when one is given, otherwise every active session
// (empty for a flat-capacity event).
func SessionsForEnrollment(agg *EventAggregate, tt *TicketType) []string {
	if tt != nil && len(tt.IncludedSessionIDs) > 0 {
		ids := make([]string, len(tt.IncludedSessionIDs))
		copy(ids, tt.IncludedSessionIDs)
		return ids
	}
	return agg.ActiveSessionIDs()
}

// DecideEnrollmentStatus applies the creation rule: Confirmed only when every
// selected session still has a seat, otherwise the whole enrollment
// waitlists together. Partial confirmation across a session set is not
// modeled.
func DecideEnrollmentStatus(agg *EventAggregate, selectedSessionIDs []string) EnrollmentStatus {
	sessions := ComputeSessionAvailability(agg)

	if len(selectedSessionIDs) == 0 {
		// Flat-capacity event: the implicit session decides.
		if sa, ok := sessions[agg.Event.ID]; ok && sa.Available < 1 {
			return EnrollmentStatusWaitlisted
		}
		return EnrollmentStatusConfirmed
	}

	for _, sid := range selectedSessionIDs {
		sa, ok := sessions[sid]
		if !ok || sa.Available < 1 {
			return EnrollmentStatusWaitlisted
		}
	}
	return EnrollmentStatusConfirmed
}

// SoldUnits counts the non-cancelled enrollments purchased with the ticket
// type. The quantity cap is always judged against this recomputed count,
// never a stored counter.
func SoldUnits(agg *EventAggregate, ticketTypeID string) int {
	sold := 0
	for i := range agg.Enrollments {
		e := &agg.Enrollments[i]
		if e.IsActive() && e.TicketTypeID != nil && *e.TicketTypeID == ticketTypeID {
			sold++
		}
	}
	return sold
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
