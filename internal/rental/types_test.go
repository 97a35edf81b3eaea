package rental

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageUnmarshalLegacyShapes(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
		wantTS time.Time
	}{
		{"rfc3339", `{"id":"a","text":"hi","timestamp":"2024-03-10T08:00:00.5Z"}`, "a", time.Date(2024, 3, 10, 8, 0, 0, 500000000, time.UTC)},
		{"unix millis number", `{"id":1710057600000,"text":"hi","timestamp":1710057600000}`, "1710057600000", time.UnixMilli(1710057600000).UTC()},
		{"unix millis string", `{"id":"b","text":"hi","timestamp":"1710057600000"}`, "b", time.UnixMilli(1710057600000).UTC()},
		{"null timestamp", `{"id":"c","text":"hi","timestamp":null}`, "c", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.ID != tt.wantID {
				t.Errorf("id = %q, want %q", m.ID, tt.wantID)
			}
			if !m.Timestamp.Equal(tt.wantTS) {
				t.Errorf("timestamp = %s, want %s", m.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestWithMessageDoesNotAlias(t *testing.T) {
	base := make([]Message, 1, 4)
	base[0] = Message{ID: "1"}
	conv := Conversation{Messages: base}

	a := conv.WithMessage(Message{ID: "a"})
	b := conv.WithMessage(Message{ID: "b"})

	if a[1].ID != "a" || b[1].ID != "b" {
		t.Fatalf("appends aliased: a=%v b=%v", a, b)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("receiver modified: %v", conv.Messages)
	}
}

func TestActiveInstructionsOrdering(t *testing.T) {
	p := Property{Instructions: []AIInstruction{
		{ID: "late", Content: "x", Active: true, Priority: 5},
		{ID: "off", Content: "y", Active: false, Priority: 0},
		{ID: "early", Content: "z", Active: true, Priority: 1},
		{ID: "blank", Content: "  ", Active: true, Priority: 2},
	}}

	got := p.ActiveInstructions()
	if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
		t.Fatalf("unexpected instructions: %+v", got)
	}
}
