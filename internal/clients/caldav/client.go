package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// Client is a thin CalDAV client with Basic Auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   *caldav.Client
	http     *http.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// IsConfigured returns true if the client has an endpoint and credentials
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.username != ""
}

// SetHTTPClient replaces the transport; Basic Auth is still added.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
	c.client = nil
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	base := http.DefaultTransport
	timeout := 30 * time.Second
	if c.http != nil {
		if c.http.Transport != nil {
			base = c.http.Transport
		}
		if c.http.Timeout > 0 {
			timeout = c.http.Timeout
		}
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
			base:     base,
		},
		Timeout: timeout,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
		})
	}
	return result, nil
}

// PutObject stores cal under <calendarPath>/<uid>.ics, replacing any
// previous version.
func (c *Client) PutObject(ctx context.Context, calendarPath, uid string, cal *ical.Calendar) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if _, err := client.PutCalendarObject(ctx, objectPath(calendarPath, uid), cal); err != nil {
		return fmt.Errorf("put %s: %w", uid, err)
	}
	return nil
}

// DeleteObject removes <calendarPath>/<uid>.ics.
func (c *Client) DeleteObject(ctx context.Context, calendarPath, uid string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, objectPath(calendarPath, uid)); err != nil {
		return fmt.Errorf("delete %s: %w", uid, err)
	}
	return nil
}

func objectPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}
