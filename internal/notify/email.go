package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Email delivers reminder batches through the Postmark email API.
type Email struct {
	serverToken string
	from        string
	to          []string
	apiURL      string
	httpClient  *http.Client
}

type EmailOption func(*Email)

func WithEmailHTTPClient(c *http.Client) EmailOption {
	return func(e *Email) { e.httpClient = c }
}

// WithAPIURL points the client at a different Postmark-compatible endpoint.
func WithAPIURL(u string) EmailOption {
	return func(e *Email) { e.apiURL = u }
}

func NewEmail(serverToken, from string, to []string, opts ...EmailOption) *Email {
	e := &Email{
		serverToken: serverToken,
		from:        from,
		to:          to,
		apiURL:      postmarkURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Configured returns true if a server token, sender and recipient are set.
func (e *Email) Configured() bool {
	return e.serverToken != "" && e.from != "" && len(e.to) > 0
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send mails msg to every recipient in one message.
func (e *Email) Send(ctx context.Context, msg Message) error {
	if !e.Configured() {
		return ErrNotConfigured
	}
	payload := postmarkEmail{
		From:     e.from,
		To:       strings.Join(e.to, ","),
		Subject:  subject(msg),
		HtmlBody: htmlBody(msg),
		TextBody: msg.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", e.serverToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var pe postmarkError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&pe); err == nil && pe.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s (code %d)", resp.StatusCode, pe.Message, pe.ErrorCode)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}

func subject(msg Message) string {
	n := len(msg.Events)
	noun := "events"
	if n == 1 {
		noun = "event"
	}
	if msg.Reminder == ReminderWeek {
		return fmt.Sprintf("Coming up next week: %d %s", n, noun)
	}
	return fmt.Sprintf("Happening tomorrow: %d %s", n, noun)
}

func htmlBody(msg Message) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, ev := range msg.Events {
		b.WriteString("<li>")
		title := html.EscapeString(ev.Title)
		if ev.URL != "" {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(ev.URL), title)
		} else {
			b.WriteString(title)
		}
		fmt.Fprintf(&b, ", %s", ev.Start.Format("Mon Jan 2 3:04 PM"))
		if ev.Venue != "" {
			fmt.Fprintf(&b, " at %s", html.EscapeString(ev.Venue))
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
