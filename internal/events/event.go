package events

import (
	"encoding/json"
	"time"

	"docintel-batch/internal/batch"
)

const eventVersion = 1

// Event announces the terminal result of one document.
type Event struct {
	Version    int    `json:"version"`
	RunID      string `json:"runId"`
	Source     string `json:"source"`
	Output     string `json:"output,omitempty"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Pages      int    `json:"pages,omitempty"`
	FinishedAt string `json:"finishedAt"`
}

// FromResult builds the event for a terminal job result. Failed jobs carry no output.
func FromResult(r batch.JobResult) Event {
	ev := Event{
		Version:    eventVersion,
		RunID:      r.RunID,
		Source:     r.Identity,
		Status:     string(r.Status),
		Kind:       string(r.Kind),
		DurationMs: r.Duration.Milliseconds(),
		Pages:      r.Pages,
		FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
	}
	if r.Status == batch.StatusSucceeded {
		ev.Output = r.OutputIdentity
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// EncodeEvent returns the JSON representation of an event.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a JSON payload into an Event.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
