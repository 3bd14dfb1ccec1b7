package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestReminderValidateSuccess(t *testing.T) {
	rem := Reminder{
		ID:        "rem-1",
		Title:     "Pay rent",
		FolderID:  InboxID,
		Priority:  PriorityHigh,
		CreatedAt: At(time.Date(2026, 2, 9, 13, 0, 0, 0, time.UTC)),
	}
	if err := rem.Validate(); err != nil {
		t.Fatalf("expected valid reminder, got error: %v", err)
	}
}

func TestReminderValidateTitle(t *testing.T) {
	rem := Reminder{ID: "rem-1", Title: "   ", CreatedAt: At(time.Now())}
	if err := rem.Validate(); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got: %v", err)
	}
}

func TestReminderSetCompletedMaintainsCompletedAt(t *testing.T) {
	now := time.Date(2026, 2, 9, 13, 0, 0, 0, time.UTC)
	rem := Reminder{ID: "rem-1", Title: "x", CreatedAt: At(now)}

	rem.SetCompleted(true, now)
	if !rem.Completed || rem.CompletedAt == nil || !rem.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt stamped, got %+v", rem)
	}

	rem.SetCompleted(true, now.Add(time.Hour))
	if !rem.CompletedAt.Equal(now) {
		t.Fatalf("completing twice must not move completedAt, got %s", rem.CompletedAt)
	}

	rem.SetCompleted(false, now)
	if rem.Completed || rem.CompletedAt != nil {
		t.Fatalf("expected completedAt cleared, got %+v", rem)
	}
	if err := rem.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestPriorityRankAndParse(t *testing.T) {
	if PriorityHigh.Rank() >= PriorityNormal.Rank() || PriorityNormal.Rank() >= PriorityLow.Rank() {
		t.Fatal("expected high < normal < low")
	}
	if Priority("urgent").Rank() <= PriorityLow.Rank() {
		t.Fatal("unknown priorities must rank after low")
	}
	p, err := ParsePriority("")
	if err != nil || p != PriorityNormal {
		t.Fatalf("expected empty priority to default to normal, got %q %v", p, err)
	}
	if _, err := ParsePriority("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}

func TestReminderJSONShape(t *testing.T) {
	created := FromMillis(1770642000000)
	rem := Reminder{
		ID:        "r1",
		Title:     "Buy milk",
		FolderID:  InboxID,
		Priority:  PriorityNormal,
		Subtasks:  []Subtask{},
		CreatedAt: created,
	}
	out, err := json.Marshal(rem)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	if generic["dueDate"] != nil || generic["completedAt"] != nil || generic["recurring"] != nil {
		t.Fatalf("expected null optionals, got %s", out)
	}
	if generic["createdAt"].(float64) != 1770642000000 {
		t.Fatalf("expected epoch millis createdAt, got %v", generic["createdAt"])
	}
	if _, ok := generic["source"]; ok {
		t.Fatalf("source must be omitted when empty: %s", out)
	}

	var back Reminder
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.CreatedAt.Equal(created.Time) || back.DueDate != nil {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}

func TestTimestampAcceptsStrings(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2026-02-09T10:30:00Z"`), &ts); err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if ts.UTC().Hour() != 10 || ts.UTC().Minute() != 30 {
		t.Fatalf("unexpected parsed time: %s", ts.UTC())
	}
	if err := json.Unmarshal([]byte(`"1770642000000"`), &ts); err != nil {
		t.Fatalf("numeric string: %v", err)
	}
	if ts.Millis() != 1770642000000 {
		t.Fatalf("unexpected millis: %d", ts.Millis())
	}
	if err := json.Unmarshal([]byte(`"next tuesday"`), &ts); err == nil {
		t.Fatal("expected error for free text date")
	}
}

func TestTimestampRejectsOutOfRangeMillis(t *testing.T) {
	for _, raw := range []string{`1e300`, `-1e300`, `9223372036854775808`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err == nil {
			t.Fatalf("expected %s to be rejected, got %s", raw, ts)
		}
	}
	var ts Timestamp
	if err := json.Unmarshal([]byte(`1770642000000.0`), &ts); err != nil || ts.Millis() != 1770642000000 {
		t.Fatalf("float millis: %d %v", ts.Millis(), err)
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	now := time.Date(2026, 3, 4, 15, 4, 5, 0, loc)
	start, end := DayBounds(now)
	if !start.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, loc)) || !end.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected bounds %s %s", start, end)
	}
}

func TestCloneIsDeep(t *testing.T) {
	due := At(time.Now())
	rem := Reminder{ID: "r", Title: "t", DueDate: &due, Subtasks: []Subtask{{ID: "s", Title: "a"}}}
	c := rem.Clone()
	c.Subtasks[0].Completed = true
	c.DueDate.Time = c.DueDate.Add(time.Hour)
	if rem.Subtasks[0].Completed || !rem.DueDate.Equal(due.Time) {
		t.Fatal("clone shares memory with original")
	}
}

func TestSubtaskAcceptsNumericID(t *testing.T) {
	var got []Subtask
	if err := json.Unmarshal([]byte(`[{"id":1707480000001,"title":"a"},{"id":"s-2","title":"b","completed":true},{"title":"c"}]`), &got); err != nil {
		t.Fatalf("unmarshal subtasks: %v", err)
	}
	if got[0].ID != "1707480000001" || got[1].ID != "s-2" || !got[1].Completed || got[2].ID != "" {
		t.Fatalf("unexpected subtasks: %+v", got)
	}
}
