package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flowpilot/app/pkg/types"
)

const requestTimeout = 10 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
	apiKey     string
	workStart  string
	workEnd    string
}

func NewClient(calendarID, apiKey, workStart, workEnd string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    "https://www.googleapis.com/calendar/v3",
		calendarID: calendarID,
		apiKey:     apiKey,
		workStart:  workStart,
		workEnd:    workEnd,
	}
}

// NewClientWithBaseURL exists for tests against a local API stub.
func NewClientWithBaseURL(baseURL, calendarID, apiKey, workStart, workEnd string) *Client {
	c := NewClient(calendarID, apiKey, workStart, workEnd)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// DayEvents lists and classifies the calendar events for a date.
func (c *Client) DayEvents(ctx context.Context, date, timezone string) ([]types.CalendarEvent, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("timeMin", date+"T00:00:00Z")
	params.Set("timeMax", date+"T23:59:59Z")
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	if timezone != "" {
		params.Set("timeZone", timezone)
	}

	endpoint := c.baseURL + "/calendars/" + url.PathEscape(c.calendarID) + "/events?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar request: status %d", resp.StatusCode)
	}

	var events []types.CalendarEvent
	gjson.ParseBytes(body).Get("items").ForEach(func(_, item gjson.Result) bool {
		events = append(events, c.mapEvent(item))
		return true
	})
	return events, nil
}

func (c *Client) mapEvent(item gjson.Result) types.CalendarEvent {
	start := item.Get("start.dateTime").String()
	if start == "" {
		if d := item.Get("start.date").String(); d != "" {
			start = d + "T00:00:00Z"
		}
	}
	end := item.Get("end.dateTime").String()
	if end == "" {
		if d := item.Get("end.date").String(); d != "" {
			end = d + "T23:59:59Z"
		}
	}

	title := strings.TrimSpace(item.Get("summary").String())
	description := item.Get("description").String()

	eventType := Classify(title, description, item.Get("eventType").String(), start, end, c.workdayDuration())

	// Google often reports opaque "Busy" entries; the description tends
	// to be more useful as a label then.
	if title == "" || strings.EqualFold(title, "busy") {
		if trimmed := strings.TrimSpace(description); trimmed != "" {
			title = trimmed
		} else {
			title = "Busy"
		}
	}

	return types.CalendarEvent{
		ID:          item.Get("id").String(),
		Title:       title,
		Start:       start,
		End:         end,
		Type:        eventType,
		Description: description,
	}
}

func (c *Client) workdayDuration() time.Duration {
	return WorkdayDuration(c.workStart, c.workEnd)
}

// Classify decides whether a calendar entry blocks the day, is merely
// informational, or is a real meeting.
func Classify(title, description, explicitType, start, end string, workday time.Duration) types.CalendarEventType {
	if explicitType == "outOfOffice" {
		return types.CalendarBlocked
	}

	text := strings.ToLower(title) + " " + strings.ToLower(description)
	for _, marker := range []string{"ooo", "out of office", "vacation", "pto"} {
		if strings.Contains(text, marker) {
			return types.CalendarBlocked
		}
	}
	for _, marker := range []string{"reminder", "hold"} {
		if strings.Contains(text, marker) {
			return types.CalendarInfo
		}
	}

	startTime, err1 := time.Parse(time.RFC3339, start)
	endTime, err2 := time.Parse(time.RFC3339, end)
	if err1 == nil && err2 == nil && workday > 0 {
		if endTime.Sub(startTime) >= workday*3/4 {
			return types.CalendarBlocked
		}
	}
	return types.CalendarMeeting
}

// WorkdayDuration computes the span between HH:MM working hour bounds.
func WorkdayDuration(workStart, workEnd string) time.Duration {
	start, err1 := time.Parse("15:04", workStart)
	end, err2 := time.Parse("15:04", workEnd)
	if err1 != nil || err2 != nil {
		return 0
	}
	return end.Sub(start)
}
