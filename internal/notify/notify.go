// Package notify sends one-week and one-day reminders for upcoming events
// to a webhook, remembering what was already sent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/eventsync/internal/model"
)

// ErrNotConfigured is returned by Run when no webhook is set.
var ErrNotConfigured = errors.New("notify: webhook not configured")

// ReminderType is the notification_log reminder_type value.
type ReminderType string

const (
	ReminderWeek ReminderType = "week"
	ReminderDay  ReminderType = "day"
)

const DefaultBatchSize = 10

// Reminder pairs an event with the reminder due for it.
type Reminder struct {
	Type  ReminderType
	Event model.CanonicalEvent
}

// Select returns the reminders due at now: events starting 6 to 8 calendar
// days out get a week reminder, events starting tomorrow get a day reminder.
// Days are counted in loc. Week reminders come first, each group in start
// order.
func Select(events []model.CanonicalEvent, now time.Time, loc *time.Location) []Reminder {
	if loc == nil {
		loc = time.Local
	}
	var week, day []Reminder
	for _, ev := range events {
		switch d := daysUntil(ev.StartDateTime, now, loc); {
		case d >= 6 && d <= 8:
			week = append(week, Reminder{Type: ReminderWeek, Event: ev})
		case d == 1:
			day = append(day, Reminder{Type: ReminderDay, Event: ev})
		}
	}
	byStart := func(rs []Reminder) {
		sort.SliceStable(rs, func(i, j int) bool {
			return rs[i].Event.StartDateTime.Before(rs[j].Event.StartDateTime)
		})
	}
	byStart(week)
	byStart(day)
	return append(week, day...)
}

// daysUntil counts calendar-day boundaries between now and t in loc.
func daysUntil(t, now time.Time, loc *time.Location) int {
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

// SentLog is the persisted (event id, reminder type) log.
// *store.NotificationStore satisfies it.
type SentLog interface {
	WasSent(eventID, reminderType string) (bool, error)
	RecordSent(eventID, reminderType string, at time.Time) error
}

// Sender delivers one message. *Webhook satisfies it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one webhook delivery covering up to a batch of events.
type Message struct {
	Reminder ReminderType   `json:"reminder"`
	Text     string         `json:"text"`
	Events   []EventSummary `json:"events"`
}

type EventSummary struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	Venue string    `json:"venue,omitempty"`
	URL   string    `json:"url,omitempty"`
}

// Result counts what a Run did.
type Result struct {
	Selected    int  `json:"selected"`
	AlreadySent int  `json:"already_sent"`
	Sent        int  `json:"sent"`
	Batches     int  `json:"batches"`
	Errors      int  `json:"errors"`
	DryRun      bool `json:"dry_run"`
}

type Notifier struct {
	sender    Sender
	sent      SentLog
	batchSize int
	dryRun    bool
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Notifier)

func WithBatchSize(n int) Option {
	return func(no *Notifier) {
		if n > 0 {
			no.batchSize = n
		}
	}
}

// WithDryRun selects and logs reminders without sending or recording them.
func WithDryRun(dry bool) Option {
	return func(no *Notifier) { no.dryRun = dry }
}

func WithLocation(loc *time.Location) Option {
	return func(no *Notifier) { no.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(no *Notifier) { no.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(no *Notifier) { no.logger = l }
}

// New creates a Notifier. sender may be nil or unconfigured for dry runs.
func New(sender Sender, sent SentLog, opts ...Option) *Notifier {
	n := &Notifier{
		sender:    sender,
		sent:      sent,
		batchSize: DefaultBatchSize,
		loc:       time.Local,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Run selects due reminders from events, drops pairs already in the sent
// log, and delivers the rest in batches. A failed batch is counted and left
// unrecorded so the next run retries it.
func (n *Notifier) Run(ctx context.Context, events []model.CanonicalEvent) (Result, error) {
	res := Result{DryRun: n.dryRun}
	if !n.dryRun && !configured(n.sender) {
		return res, ErrNotConfigured
	}
	now := n.now()

	due := Select(events, now, n.loc)
	res.Selected = len(due)

	pending := make(map[ReminderType][]Reminder)
	for _, r := range due {
		sent, err := n.sent.WasSent(r.Event.ID, string(r.Type))
		if err != nil {
			res.Errors++
			n.logger.Error("check reminder log", "id", r.Event.ID, "reminder", r.Type, "error", err)
			continue
		}
		if sent {
			res.AlreadySent++
			continue
		}
		pending[r.Type] = append(pending[r.Type], r)
	}

	for _, typ := range []ReminderType{ReminderWeek, ReminderDay} {
		for _, batch := range chunk(pending[typ], n.batchSize) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			msg := n.message(typ, batch)
			if n.dryRun {
				n.logger.Info("reminder batch (dry run)", "reminder", typ, "count", len(batch))
				res.Batches++
				res.Sent += len(batch)
				continue
			}
			if err := n.sender.Send(ctx, msg); err != nil {
				res.Errors++
				n.logger.Error("send reminder batch", "reminder", typ, "count", len(batch), "error", err)
				continue
			}
			res.Batches++
			for _, r := range batch {
				if err := n.sent.RecordSent(r.Event.ID, string(typ), now); err != nil {
					res.Errors++
					n.logger.Error("record reminder", "id", r.Event.ID, "reminder", typ, "error", err)
					continue
				}
				res.Sent++
			}
		}
	}

	n.logger.Info("reminders processed",
		"selected", res.Selected,
		"already_sent", res.AlreadySent,
		"sent", res.Sent,
		"batches", res.Batches,
		"errors", res.Errors,
		"dry_run", res.DryRun)
	return res, nil
}

func (n *Notifier) message(typ ReminderType, batch []Reminder) Message {
	var b strings.Builder
	switch typ {
	case ReminderWeek:
		b.WriteString("Coming up next week:")
	default:
		b.WriteString("Happening tomorrow:")
	}
	msg := Message{Reminder: typ, Events: make([]EventSummary, 0, len(batch))}
	for _, r := range batch {
		ev := r.Event
		start := ev.StartDateTime.In(n.loc)
		fmt.Fprintf(&b, "\n- %s, %s", ev.Title, start.Format("Mon Jan 2 3:04 PM"))
		if v := ev.VenueName(); v != "" {
			fmt.Fprintf(&b, " at %s", v)
		}
		msg.Events = append(msg.Events, EventSummary{
			ID:    ev.ID,
			Title: ev.Title,
			Start: start,
			Venue: ev.VenueName(),
			URL:   ev.URL,
		})
	}
	msg.Text = b.String()
	return msg
}

func configured(s Sender) bool {
	if s == nil {
		return false
	}
	if c, ok := s.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func chunk(rs []Reminder, size int) [][]Reminder {
	var out [][]Reminder
	for len(rs) > size {
		out = append(out, rs[:size])
		rs = rs[size:]
	}
	if len(rs) > 0 {
		out = append(out, rs)
	}
	return out
}
