package gateway

import (
	"strconv"
	"testing"
)

func TestEventLogEvictsOldest(t *testing.T) {
	l := NewEventLog(3)
	for i := 0; i < 5; i++ {
		l.Add(ConnectionEvent{Type: "session_start", ConversationID: strconv.Itoa(i)})
	}
	events := l.All()
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	for i, ev := range events {
		if want := strconv.Itoa(i + 2); ev.ConversationID != want {
			t.Errorf("events[%d] = %q, want %q", i, ev.ConversationID, want)
		}
	}
}

func TestEventLogStampsTime(t *testing.T) {
	l := NewEventLog(0)
	l.Add(ConnectionEvent{Type: "session_end"})
	if l.All()[0].Timestamp.IsZero() {
		t.Error("zero timestamp not filled")
	}
}

func TestEventLogAllReturnsCopy(t *testing.T) {
	l := NewEventLog(0)
	l.Add(ConnectionEvent{ConversationID: "a"})
	got := l.All()
	got[0].ConversationID = "mutated"
	if l.All()[0].ConversationID != "a" {
		t.Error("All exposed internal storage")
	}
}
