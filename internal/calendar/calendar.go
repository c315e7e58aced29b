// Package calendar implements the two Google Calendar boundaries the
// engine depends on: read-only availability (Boundary 1) and the managed
// write surface used to publish scheduled blocks as events (Boundary 2).
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/qzwhatnext/engine/internal/store"
)

// ManagedBlockIDProperty is the private extended property key the
// synchronizer stamps on every event it creates, so a later full read can
// prove the event is engine-owned even if its title was edited.
const ManagedBlockIDProperty = "qzwhatnext_block_id"

// ManagedMarkerProperty distinguishes an engine-created event from one the
// user created that merely happens to carry a block id coincidentally.
const ManagedMarkerProperty = "qzwhatnext_managed"

// Client defines every Google Calendar operation the engine needs, covering
// both the read boundary (availability) and the write boundary (managed
// events) in one interface; a mock implements all of it.
type Client interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*store.OAuthCredentials, error)
	RefreshToken(ctx context.Context, creds *store.OAuthCredentials) (*store.OAuthCredentials, error)

	ListCalendars(ctx context.Context, creds *store.OAuthCredentials) ([]*CalendarInfo, error)
	FetchEvents(ctx context.Context, creds *store.OAuthCredentials, calendarID string, minTime, maxTime time.Time) (*SyncResult, error)
	FetchEventsIncremental(ctx context.Context, creds *store.OAuthCredentials, calendarID string, syncToken string) (*SyncResult, error)

	CreateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID string, block ManagedEvent) (*EventRef, error)
	UpdateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string, block ManagedEvent) (*EventRef, error)
	DeleteManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) error
	GetEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) (*RawEvent, error)
}

var _ Client = (*Service)(nil)

// Service wraps the real Google Calendar API.
type Service struct {
	config *oauth2.Config
}

func NewService(clientID, clientSecret, redirectURL string) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendarapi.CalendarScope},
			Endpoint:     googleoauth.Endpoint,
		},
	}
}

func (s *Service) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) ExchangeCode(ctx context.Context, code string) (*store.OAuthCredentials, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return toCredentials(token), nil
}

func (s *Service) RefreshToken(ctx context.Context, creds *store.OAuthCredentials) (*store.OAuthCredentials, error) {
	src := s.config.TokenSource(ctx, toToken(creds))
	newToken, err := src.Token()
	if err != nil {
		return nil, err
	}
	return toCredentials(newToken), nil
}

// SyncResult mirrors the Google Calendar Events.List response shape the
// synchronizer needs: the page of events plus the token for the next
// incremental pull.
type SyncResult struct {
	Events        []*calendarapi.Event
	NextSyncToken string
	FullSync      bool
}

type CalendarInfo struct {
	ID        string
	Name      string
	IsPrimary bool
}

// ManagedEvent is what the synchronizer asks to be written to the
// calendar for one scheduled block.
type ManagedEvent struct {
	Title    string
	Start    time.Time
	End      time.Time
	BlockID  string
}

// EventRef is what the calendar hands back after a write: the identity
// needed to detect later user edits.
type EventRef struct {
	EventID string
	ETag    string
}

// RawEvent is the subset of an event's current state the reconciliation
// loop inspects to classify drift (title changed vs. time moved vs. both).
type RawEvent struct {
	EventID    string
	ETag       string
	Title      string
	Start      time.Time
	End        time.Time
	IsManaged  bool
	BlockID    string
}

func (s *Service) ListCalendars(ctx context.Context, creds *store.OAuthCredentials) ([]*CalendarInfo, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}
	list, err := srv.CalendarList.List().Do()
	if err != nil {
		return nil, err
	}
	var out []*CalendarInfo
	for _, item := range list.Items {
		out = append(out, &CalendarInfo{ID: item.Id, Name: item.Summary, IsPrimary: item.Primary})
	}
	return out, nil
}

func (s *Service) FetchEvents(ctx context.Context, creds *store.OAuthCredentials, calendarID string, minTime, maxTime time.Time) (*SyncResult, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}

	var all []*calendarapi.Event
	pageToken := ""
	var syncToken string
	for {
		call := srv.Events.List(calendarID).
			TimeMin(minTime.Format(time.RFC3339)).
			TimeMax(maxTime.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(250)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, err
		}
		all = append(all, events.Items...)
		pageToken = events.NextPageToken
		syncToken = events.NextSyncToken
		if pageToken == "" {
			break
		}
	}
	return &SyncResult{Events: all, NextSyncToken: syncToken, FullSync: true}, nil
}

func (s *Service) FetchEventsIncremental(ctx context.Context, creds *store.OAuthCredentials, calendarID string, syncToken string) (*SyncResult, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}

	var all []*calendarapi.Event
	pageToken := ""
	var nextSyncToken string
	for {
		call := srv.Events.List(calendarID).SyncToken(syncToken).MaxResults(250)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, err
		}
		all = append(all, events.Items...)
		pageToken = events.NextPageToken
		nextSyncToken = events.NextSyncToken
		if pageToken == "" {
			break
		}
	}
	return &SyncResult{Events: all, NextSyncToken: nextSyncToken, FullSync: false}, nil
}

func (s *Service) CreateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID string, block ManagedEvent) (*EventRef, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}
	ev := toAPIEvent(block)
	created, err := srv.Events.Insert(calendarID, ev).Do()
	if err != nil {
		return nil, err
	}
	return &EventRef{EventID: created.Id, ETag: created.Etag}, nil
}

func (s *Service) UpdateManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string, block ManagedEvent) (*EventRef, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}
	ev := toAPIEvent(block)
	updated, err := srv.Events.Update(calendarID, eventID, ev).Do()
	if err != nil {
		return nil, err
	}
	return &EventRef{EventID: updated.Id, ETag: updated.Etag}, nil
}

func (s *Service) DeleteManagedEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) error {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return err
	}
	return srv.Events.Delete(calendarID, eventID).Do()
}

func (s *Service) GetEvent(ctx context.Context, creds *store.OAuthCredentials, calendarID, eventID string) (*RawEvent, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}
	ev, err := srv.Events.Get(calendarID, eventID).Do()
	if err != nil {
		return nil, err
	}
	return fromAPIEvent(ev), nil
}

func (s *Service) getService(ctx context.Context, creds *store.OAuthCredentials) (*calendarapi.Service, error) {
	client := s.config.Client(ctx, toToken(creds))
	return calendarapi.NewService(ctx, option.WithHTTPClient(client))
}

func toAPIEvent(block ManagedEvent) *calendarapi.Event {
	return &calendarapi.Event{
		Summary: block.Title,
		Start:   &calendarapi.EventDateTime{DateTime: block.Start.Format(time.RFC3339)},
		End:     &calendarapi.EventDateTime{DateTime: block.End.Format(time.RFC3339)},
		ExtendedProperties: &calendarapi.EventExtendedProperties{
			Private: map[string]string{
				ManagedBlockIDProperty: block.BlockID,
				ManagedMarkerProperty:  "true",
			},
		},
	}
}

func fromAPIEvent(ev *calendarapi.Event) *RawEvent {
	raw := &RawEvent{EventID: ev.Id, ETag: ev.Etag, Title: ev.Summary}
	if ev.Start != nil {
		raw.Start, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
	}
	if ev.End != nil {
		raw.End, _ = time.Parse(time.RFC3339, ev.End.DateTime)
	}
	if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private != nil {
		if _, ok := ev.ExtendedProperties.Private[ManagedMarkerProperty]; ok {
			raw.IsManaged = true
			raw.BlockID = ev.ExtendedProperties.Private[ManagedBlockIDProperty]
		}
	}
	return raw
}

// IsCancelled reports whether an incremental sync page entry is a
// cancellation notice rather than a live event.
func IsCancelled(ev *calendarapi.Event) bool {
	return ev.Status == "cancelled"
}

// ManagedBlockID extracts the block id an engine-created event was
// stamped with, if any. The synchronizer uses this to link an ingested
// event back to the block that produced it, so the availability builder
// can skip its own output instead of double-counting it as busy time.
func ManagedBlockID(ev *calendarapi.Event) (string, bool) {
	if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private == nil {
		return "", false
	}
	if _, ok := ev.ExtendedProperties.Private[ManagedMarkerProperty]; !ok {
		return "", false
	}
	return ev.ExtendedProperties.Private[ManagedBlockIDProperty], true
}

// EventToStoreEvent converts one Google Calendar event into the cached
// row the availability builder reads. All-day events are normalized to a
// midnight-to-midnight span in the event's own date fields, matching how
// Google reports them (Date rather than DateTime).
func EventToStoreEvent(ev *calendarapi.Event, connectionID, calendarID, userID uuid.UUID) *store.CalendarEvent {
	ce := &store.CalendarEvent{
		ConnectionID: connectionID,
		CalendarID:   &calendarID,
		UserID:       userID,
		ExternalID:   ev.Id,
		Title:        ev.Summary,
		IsRecurring:  ev.RecurringEventId != "",
	}
	if ev.Description != "" {
		d := ev.Description
		ce.Description = &d
	}
	if ev.Transparency != "" {
		t := ev.Transparency
		ce.Transparency = &t
	}
	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			ce.StartTime, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
		} else if ev.Start.Date != "" {
			ce.StartTime, _ = time.Parse("2006-01-02", ev.Start.Date)
			ce.IsAllDay = true
		}
	}
	if ev.End != nil {
		if ev.End.DateTime != "" {
			ce.EndTime, _ = time.Parse(time.RFC3339, ev.End.DateTime)
		} else if ev.End.Date != "" {
			ce.EndTime, _ = time.Parse("2006-01-02", ev.End.Date)
		}
	}
	for _, a := range ev.Attendees {
		ce.Attendees = append(ce.Attendees, a.Email)
		if a.Self && a.ResponseStatus != "" {
			rs := a.ResponseStatus
			ce.ResponseStatus = &rs
		}
	}
	if blockID, ok := ManagedBlockID(ev); ok {
		if bid, err := uuid.Parse(blockID); err == nil {
			ce.QZBlockID = &bid
		}
	}
	return ce
}

func toToken(creds *store.OAuthCredentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}
}

func toCredentials(token *oauth2.Token) *store.OAuthCredentials {
	return &store.OAuthCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
}
