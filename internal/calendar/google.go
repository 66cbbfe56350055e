// Package calendar adapts Google Calendar to the scheduler's Calendar
// interface.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/frontdeskhq/callback-platform/internal/scheduling"
)

// GoogleCalendar talks to the Google Calendar API using a service account.
type GoogleCalendar struct {
	svc *gcal.Service
}

// NewGoogleCalendar builds the client from service account credentials JSON.
func NewGoogleCalendar(ctx context.Context, credentialsJSON string) (*GoogleCalendar, error) {
	if strings.TrimSpace(credentialsJSON) == "" {
		return nil, errors.New("calendar: service account credentials are required")
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return &GoogleCalendar{svc: svc}, nil
}

// ListBusyIntervals queries free/busy for the calendar over [from, to).
func (g *GoogleCalendar) ListBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]scheduling.Interval, error) {
	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	intervals := make([]scheduling.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		intervals = append(intervals, scheduling.Interval{Start: start, End: end})
	}
	return intervals, nil
}

// CreateEvent inserts the mirrored event and returns its id.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, event scheduling.Event) (string, error) {
	created, err := g.svc.Events.Insert(calendarID, &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes the event, tolerating already-deleted.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	return nil
}

// EventExists reports whether the event is still present and not cancelled.
func (g *GoogleCalendar) EventExists(ctx context.Context, calendarID, eventID string) (bool, error) {
	event, err := g.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return false, nil
		}
		return false, fmt.Errorf("calendar: get event: %w", err)
	}
	return event.Status != "cancelled", nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
