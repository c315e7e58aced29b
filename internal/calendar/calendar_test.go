package calendar

import (
	"testing"
	"time"

	"github.com/google/uuid"
	calendarapi "google.golang.org/api/calendar/v3"
)

func TestEventToStoreEvent_Timed(t *testing.T) {
	connID, calID, userID := uuid.New(), uuid.New(), uuid.New()
	ev := &calendarapi.Event{
		Id:      "ext-1",
		Summary: "Dentist",
		Start:   &calendarapi.EventDateTime{DateTime: "2026-08-01T09:00:00Z"},
		End:     &calendarapi.EventDateTime{DateTime: "2026-08-01T09:30:00Z"},
		Attendees: []*calendarapi.EventAttendee{
			{Email: "me@example.com", Self: true, ResponseStatus: "accepted"},
		},
	}

	ce := EventToStoreEvent(ev, connID, calID, userID)

	if ce.ExternalID != "ext-1" || ce.Title != "Dentist" {
		t.Fatalf("unexpected mapping: %+v", ce)
	}
	if ce.IsAllDay {
		t.Error("timed event should not be marked all-day")
	}
	if ce.ResponseStatus == nil || *ce.ResponseStatus != "accepted" {
		t.Errorf("response status = %v, want accepted", ce.ResponseStatus)
	}
	wantStart := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !ce.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", ce.StartTime, wantStart)
	}
}

func TestEventToStoreEvent_AllDay(t *testing.T) {
	ev := &calendarapi.Event{
		Id:      "ext-2",
		Summary: "Company holiday",
		Start:   &calendarapi.EventDateTime{Date: "2026-12-25"},
		End:     &calendarapi.EventDateTime{Date: "2026-12-26"},
	}

	ce := EventToStoreEvent(ev, uuid.New(), uuid.New(), uuid.New())

	if !ce.IsAllDay {
		t.Error("date-only event should be marked all-day")
	}
}

func TestEventToStoreEvent_ManagedMarker(t *testing.T) {
	blockID := uuid.New()
	ev := toAPIEvent(ManagedEvent{Title: "Write report", Start: time.Now(), End: time.Now().Add(time.Hour), BlockID: blockID.String()})

	id, ok := ManagedBlockID(ev)
	if !ok || id != blockID.String() {
		t.Fatalf("ManagedBlockID = (%q, %v), want (%q, true)", id, ok, blockID.String())
	}

	ce := EventToStoreEvent(ev, uuid.New(), uuid.New(), uuid.New())
	if ce.QZBlockID == nil || *ce.QZBlockID != blockID {
		t.Errorf("QZBlockID = %v, want %v", ce.QZBlockID, blockID)
	}
}

func TestIsCancelled(t *testing.T) {
	if IsCancelled(&calendarapi.Event{Status: "confirmed"}) {
		t.Error("confirmed event reported cancelled")
	}
	if !IsCancelled(&calendarapi.Event{Status: "cancelled"}) {
		t.Error("cancelled event not detected")
	}
}
