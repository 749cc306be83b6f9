// Package message models chat messages as a tagged union over their content.
package message

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/store"
)

// EphemeralPrefix marks ids of messages that exist only on the client.
const EphemeralPrefix = "local-"

type Sender string

const (
	SenderMe    Sender = "me"
	SenderOther Sender = "other"
	SenderAdmin Sender = "admin"
)

func ParseSender(s string) (Sender, error) {
	switch Sender(s) {
	case SenderMe, SenderOther, SenderAdmin:
		return Sender(s), nil
	}
	return "", fmt.Errorf("invalid sender: %q", s)
}

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindDate  Kind = "date"
)

// Content is one of Text, Audio or DateSeparator.
type Content interface {
	Kind() Kind
	content()
}

type Text struct {
	Body string
}

type Audio struct {
	Body     string
	Duration float64 // seconds
}

// DateSeparator is synthesized for rendering and never stored.
type DateSeparator struct {
	Day time.Time
}

func (Text) Kind() Kind          { return KindText }
func (Audio) Kind() Kind         { return KindAudio }
func (DateSeparator) Kind() Kind { return KindDate }

func (Text) content()          {}
func (Audio) content()         {}
func (DateSeparator) content() {}

type Message struct {
	ID     string
	Sender Sender
	// Timestamp is nil until the store has assigned it.
	Timestamp *time.Time
	Content   Content
}

func (m Message) Kind() Kind {
	if m.Content == nil {
		return KindText
	}
	return m.Content.Kind()
}

// Text returns the textual body of text and audio messages.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case Text:
		return c.Body
	case Audio:
		return c.Body
	}
	return ""
}

func (m Message) Ephemeral() bool {
	return strings.HasPrefix(m.ID, EphemeralPrefix)
}

// Decode reads a stored message document.
func Decode(id string, data map[string]any) (Message, error) {
	getStr := func(key string) string {
		v, _ := data[key].(string)
		return v
	}

	sender, err := ParseSender(getStr(contract.FieldSender))
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	m := Message{ID: id, Sender: sender}
	if ts, ok := data[contract.FieldTimestamp].(time.Time); ok && !ts.IsZero() {
		ts = ts.UTC()
		m.Timestamp = &ts
	}

	switch Kind(getStr(contract.FieldType)) {
	case KindText, "":
		m.Content = Text{Body: getStr(contract.FieldText)}
	case KindAudio:
		m.Content = Audio{Body: getStr(contract.FieldText), Duration: number(data[contract.FieldDuration])}
	case KindDate:
		return Message{}, fmt.Errorf("message %s: date separators are not stored", id)
	default:
		return Message{}, fmt.Errorf("message %s: invalid type %q", id, getStr(contract.FieldType))
	}
	return m, nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// NewTextDocument is the stored form of a new text message; the store assigns the timestamp.
func NewTextDocument(sender Sender, body string) map[string]any {
	return map[string]any{
		contract.FieldText:      body,
		contract.FieldSender:    string(sender),
		contract.FieldTimestamp: store.ServerTimestamp,
		contract.FieldType:      string(KindText),
	}
}

// SortByTimestamp orders messages ascending; messages without a timestamp go last.
func SortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Timestamp, msgs[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}

// WithDateSeparators inserts a DateSeparator before the first message of
// every calendar day in loc. Messages without a timestamp get none.
func WithDateSeparators(msgs []Message, loc *time.Location) []Message {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Message, 0, len(msgs))
	var lastDay time.Time
	for _, m := range msgs {
		if m.Timestamp != nil {
			t := m.Timestamp.In(loc)
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
			if !day.Equal(lastDay) {
				out = append(out, Message{
					ID:        "date-" + day.Format(time.DateOnly),
					Sender:    SenderOther,
					Timestamp: &day,
					Content:   DateSeparator{Day: day},
				})
				lastDay = day
			}
		}
		out = append(out, m)
	}
	return out
}
