package googlecal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

const (
	calendarID     = "primary"
	reminderOffset = 60 // minutes before the event
	maxListResults = 250
)

// Service implements ports.Calendar on the Google Calendar API.
type Service struct {
	svc *calendar.Service
}

var _ ports.Calendar = (*Service)(nil)

// NewService wires the Calendar API behind the calendar port.
func NewService(ctx context.Context, httpClient *http.Client) (*Service, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Service{svc: svc}, nil
}

// ListUpcomingEvents returns the primary calendar's events within the
// window, expanded to single instances in start-time order.
func (s *Service) ListUpcomingEvents(ctx context.Context, window time.Duration) ([]domain.ExistingEvent, error) {
	now := time.Now()
	list, err := s.svc.Events.List(calendarID).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(window).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxListResults).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	events := make([]domain.ExistingEvent, 0, len(list.Items))
	for _, item := range list.Items {
		start, startErr := eventTime(item.Start)
		end, endErr := eventTime(item.End)
		if startErr != nil || endErr != nil {
			continue
		}
		events = append(events, domain.ExistingEvent{
			ID:    item.Id,
			Title: item.Summary,
			Start: start,
			End:   end,
		})
	}
	return events, nil
}

// CreateEvent inserts the candidate on the primary calendar with a popup
// reminder and returns the new event's id.
func (s *Service) CreateEvent(ctx context.Context, candidate domain.EventCandidate) (string, error) {
	start, end := candidate.Interval()
	description := ""
	if candidate.MeetingLink != "" {
		description = "Join: " + candidate.MeetingLink
	}

	event := &calendar.Event{
		Summary:     candidate.Title,
		Location:    candidate.Location,
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: reminderOffset},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := s.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

// eventTime resolves a calendar timestamp, falling back to the all-day
// date form.
func eventTime(t *calendar.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	return time.Parse("2006-01-02", t.Date)
}
