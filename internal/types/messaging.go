package types

import "time"

// AlertChangeMessage is the payload published for every alert row that was
// new or changed in a run. Delivery is at-least-once; consumers dedupe on
// MessageID or on (FieldID, Date) plus the alert values.
type AlertChangeMessage struct {
	MessageID   string       `json:"message_id"`
	RunID       string       `json:"run_id,omitempty"`
	FieldID     string       `json:"field_id"`
	Date        string       `json:"date"` // YYYY-MM-DD
	Previous    *AlertRecord `json:"previous,omitempty"`
	Current     AlertRecord  `json:"current"`
	PublishedAt time.Time    `json:"published_at"`
}

// NewAlertChangeMessage builds the envelope for change.
func NewAlertChangeMessage(messageID, runID string, change AlertChange, at time.Time) AlertChangeMessage {
	return AlertChangeMessage{
		MessageID:   messageID,
		RunID:       runID,
		FieldID:     change.Current.FieldID,
		Date:        change.Current.Date.UTC().Format(DateLayout),
		Previous:    change.Previous,
		Current:     change.Current,
		PublishedAt: at.UTC(),
	}
}
