package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/qzwhatnext/engine/internal/store"
)

// MockClient is a test double for Client: call-tracking plus
// fixture maps for events, matching the style of the real sync path's
// range/token-keyed lookups.
type MockClient struct {
	mu sync.Mutex

	AuthURL string

	ExchangeCredentials *store.OAuthCredentials
	ExchangeError       error

	RefreshCredentials *store.OAuthCredentials
	RefreshError       error

	Calendars      []*CalendarInfo
	CalendarsError error

	EventsByRange map[string]*SyncResult
	FetchError    error

	EventsByToken    map[string]*SyncResult
	IncrementalError error

	Events map[string]*RawEvent // keyed by eventID, mutated by Create/Update/Delete
	CreateError, UpdateError, DeleteError, GetError error

	ExchangeCalls    []string
	RefreshCalls     int
	FetchCalls       []FetchCall
	IncrementalCalls []IncrementalCall
	CreateCalls      []ManagedEvent
	UpdateCalls      []ManagedEvent
	DeleteCalls      []string
}

type FetchCall struct {
	CalendarID string
	MinTime    time.Time
	MaxTime    time.Time
}

type IncrementalCall struct {
	CalendarID string
	SyncToken  string
}

func NewMockClient() *MockClient {
	return &MockClient{
		AuthURL:       "https://accounts.google.com/mock-auth",
		EventsByRange: make(map[string]*SyncResult),
		EventsByToken: make(map[string]*SyncResult),
		Events:        make(map[string]*RawEvent),
		ExchangeCredentials: &store.OAuthCredentials{
			AccessToken: "mock-access-token", RefreshToken: "mock-refresh-token",
			TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
		},
		RefreshCredentials: &store.OAuthCredentials{
			AccessToken: "mock-refreshed-access-token", RefreshToken: "mock-refresh-token",
			TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
		},
	}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) GetAuthURL(state string) string {
	return m.AuthURL + "?state=" + state
}

func (m *MockClient) ExchangeCode(ctx context.Context, code string) (*store.OAuthCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExchangeCalls = append(m.ExchangeCalls, code)
	if m.ExchangeError != nil {
		return nil, m.ExchangeError
	}
	return m.ExchangeCredentials, nil
}

func (m *MockClient) RefreshToken(ctx context.Context, creds *store.OAuthCredentials) (*store.OAuthCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCalls++
	if m.RefreshError != nil {
		return nil, m.RefreshError
	}
	return m.RefreshCredentials, nil
}

func (m *MockClient) ListCalendars(ctx context.Context, creds *store.OAuthCredentials) ([]*CalendarInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CalendarsError != nil {
		return nil, m.CalendarsError
	}
	return m.Calendars, nil
}

func (m *MockClient) FetchEvents(ctx context.Context, creds *store.OAuthCredentials, calendarID string, minTime, maxTime time.Time) (*SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, FetchCall{calendarID, minTime, maxTime})
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	key := fmt.Sprintf("%s:%s:%s", calendarID, minTime.Format("2006-01-02"), maxTime.Format("2006-01-02"))
	if result, ok := m.EventsByRange[key]; ok {
		return result, nil
	}
	return &SyncResult{NextSyncToken: "mock-sync-token-" + calendarID, FullSync: true}, nil
}

func (m *MockClient) FetchEventsIncremental(ctx context.Context, creds *store.OAuthCredentials, calendarID string, syncToken string) (*SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementalCalls = append(m.IncrementalCalls, IncrementalCall{calendarID, syncToken})
	if m.IncrementalError != nil {
		return nil, m.IncrementalError
	}
	key := fmt.Sprintf("%s:%s", calendarID, syncToken)
	if result, ok := m.EventsByToken[key]; ok {
		return result, nil
	}
	return &SyncResult{NextSyncToken: "mock-sync-token-new-" + calendarID, FullSync: false}, nil
}

func (m *MockClient) CreateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID string, block ManagedEvent) (*EventRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = append(m.CreateCalls, block)
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	id := uuid.New().String()
	m.Events[id] = &RawEvent{EventID: id, ETag: "etag-1", Title: block.Title, Start: block.Start, End: block.End, IsManaged: true, BlockID: block.BlockID}
	return &EventRef{EventID: id, ETag: "etag-1"}, nil
}

func (m *MockClient) UpdateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string, block ManagedEvent) (*EventRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls = append(m.UpdateCalls, block)
	if m.UpdateError != nil {
		return nil, m.UpdateError
	}
	ev, ok := m.Events[eventID]
	if !ok {
		ev = &RawEvent{EventID: eventID}
		m.Events[eventID] = ev
	}
	ev.Title, ev.Start, ev.End, ev.IsManaged, ev.BlockID = block.Title, block.Start, block.End, true, block.BlockID
	ev.ETag = fmt.Sprintf("etag-%d", len(m.UpdateCalls)+1)
	return &EventRef{EventID: ev.EventID, ETag: ev.ETag}, nil
}

func (m *MockClient) DeleteManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, eventID)
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.Events, eventID)
	return nil
}

func (m *MockClient) GetEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) (*RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	ev, ok := m.Events[eventID]
	if !ok {
		return nil, fmt.Errorf("mock event %s not found", eventID)
	}
	return ev, nil
}

func (m *MockClient) SetEventsForRange(calendarID string, minTime, maxTime time.Time, events []*calendarapi.Event, nextToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%s:%s", calendarID, minTime.Format("2006-01-02"), maxTime.Format("2006-01-02"))
	m.EventsByRange[key] = &SyncResult{Events: events, NextSyncToken: nextToken, FullSync: true}
}

func (m *MockClient) SetEventsForToken(calendarID, syncToken string, events []*calendarapi.Event, nextToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%s", calendarID, syncToken)
	m.EventsByToken[key] = &SyncResult{Events: events, NextSyncToken: nextToken, FullSync: false}
}

func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExchangeCalls = nil
	m.RefreshCalls = 0
	m.FetchCalls = nil
	m.IncrementalCalls = nil
	m.CreateCalls = nil
	m.UpdateCalls = nil
	m.DeleteCalls = nil
}
