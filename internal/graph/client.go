// Package graph is a minimal Microsoft Graph client: client-credentials
// token exchange plus calendar event listing.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"boardfill/internal/domain"
)

// Options configure a Client.
type Options struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// AuthBaseURL and GraphBaseURL override the public endpoints in tests.
	AuthBaseURL  string
	GraphBaseURL string
	HTTPClient   *http.Client
}

// Client authenticates against Azure AD and reads users' calendars.
type Client struct {
	tenantID     string
	clientID     string
	clientSecret string
	authBaseURL  string
	graphBaseURL string
	httpClient   *http.Client

	accessToken string
}

func New(opts Options) *Client {
	authBase := strings.TrimRight(opts.AuthBaseURL, "/")
	if authBase == "" {
		authBase = "https://login.microsoftonline.com"
	}
	graphBase := strings.TrimRight(opts.GraphBaseURL, "/")
	if graphBase == "" {
		graphBase = "https://graph.microsoft.com/v1.0"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		tenantID:     opts.TenantID,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		authBaseURL:  authBase,
		graphBaseURL: graphBase,
		httpClient:   httpClient,
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	if c.accessToken != "" {
		return c.accessToken, nil
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.authBaseURL, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph token exchange: HTTP %d", resp.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	c.accessToken = payload.AccessToken
	return c.accessToken, nil
}

// TestConnection reports whether the credential can obtain a token.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.authenticate(ctx)
	return err == nil
}

// CalendarEvents lists a user's calendar events within the date window,
// ordered by start time.
func (c *Client) CalendarEvents(ctx context.Context, userEmail string, from, to time.Time) ([]domain.CalendarEvent, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("start/dateTime ge '%sT00:00:00Z' and end/dateTime le '%sT23:59:59Z'",
		from.Format("2006-01-02"), to.Format("2006-01-02")))
	q.Set("$select", "subject,start,end,body,categories")
	q.Set("$orderby", "start/dateTime")
	u := fmt.Sprintf("%s/users/%s/calendar/events?%s", c.graphBaseURL, url.PathEscape(userEmail), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph calendar query: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Value []struct {
			Subject string `json:"subject"`
			Start   struct {
				DateTime string `json:"dateTime"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
			} `json:"end"`
			Body struct {
				Content string `json:"content"`
			} `json:"body"`
			Categories []string `json:"categories"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode calendar response: %w", err)
	}

	events := make([]domain.CalendarEvent, 0, len(payload.Value))
	for _, item := range payload.Value {
		start, err := parseGraphTime(item.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", item.Subject, err)
		}
		end, err := parseGraphTime(item.End.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", item.Subject, err)
		}
		events = append(events, domain.CalendarEvent{
			Subject:    item.Subject,
			Start:      start,
			End:        end,
			Body:       item.Body.Content,
			Categories: item.Categories,
		})
	}
	return events, nil
}

// parseGraphTime accepts the fractional-second timestamps Graph emits, with
// or without a zone designator.
func parseGraphTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
