package repository

import (
	"testing"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
	"pgregory.net/rapid"
)

func ids(items []model.Reminder) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestListRemindersFiltersCompose(t *testing.T) {
	repo, clock := setupRepo(t)
	today := model.At(clock.now.Add(2 * time.Hour))
	tomorrow := model.At(clock.now.Add(30 * time.Hour))
	work, _ := repo.CreateFolder(FolderInput{Name: "Work"})

	mustCreate(t, repo, ReminderInput{Title: "Standup #Meeting", FolderID: work.ID, DueDate: &today})
	mustCreate(t, repo, ReminderInput{Title: "Retro", Notes: "bring #meeting notes", FolderID: work.ID, DueDate: &tomorrow})
	mustCreate(t, repo, ReminderInput{Title: "Groceries", Notes: "milk"})

	if got := repo.ListReminders(Filter{FolderID: work.ID}); len(got) != 2 {
		t.Fatalf("folder filter: got %v", ids(got))
	}
	if got := repo.ListReminders(Filter{DueToday: true}); len(got) != 1 || got[0].Title != "Standup #Meeting" {
		t.Fatalf("due today filter: got %v", ids(got))
	}
	if got := repo.ListReminders(Filter{Tag: "#MEETING"}); len(got) != 2 {
		t.Fatalf("tag filter should be case-insensitive over title and notes: got %v", ids(got))
	}
	if got := repo.ListReminders(Filter{Search: "MILK"}); len(got) != 1 || got[0].Title != "Groceries" {
		t.Fatalf("search filter: got %v", ids(got))
	}
	no := false
	if got := repo.ListReminders(Filter{FolderID: work.ID, Completed: &no, Tag: "#meeting", Search: "retro"}); len(got) != 1 {
		t.Fatalf("combined filters: got %v", ids(got))
	}
	if got := repo.ListReminders(Filter{Scheduled: true}); len(got) != 2 {
		t.Fatalf("scheduled filter: got %v", ids(got))
	}
}

func TestSortContract(t *testing.T) {
	repo, clock := setupRepo(t)
	early := model.At(clock.now.Add(time.Hour))
	late := model.At(clock.now.Add(5 * time.Hour))

	mustCreate(t, repo, ReminderInput{Title: "low", Priority: model.PriorityLow})
	clock.now = clock.now.Add(time.Minute)
	mustCreate(t, repo, ReminderInput{Title: "normal-old"})
	clock.now = clock.now.Add(time.Minute)
	mustCreate(t, repo, ReminderInput{Title: "normal-new"})
	mustCreate(t, repo, ReminderInput{Title: "normal-late", DueDate: &late})
	mustCreate(t, repo, ReminderInput{Title: "normal-early", DueDate: &early})
	mustCreate(t, repo, ReminderInput{Title: "high", Priority: model.PriorityHigh})
	done := mustCreate(t, repo, ReminderInput{Title: "done-high", Priority: model.PriorityHigh})
	yes := true
	if _, err := repo.UpdateReminder(done.ID, ReminderPatch{Completed: &yes}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got := ids(repo.ListReminders(Filter{}))
	want := []string{"high", "normal-early", "normal-late", "normal-new", "normal-old", "low", "done-high"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v want %v", i, got, want)
		}
	}
}

func TestSortUnknownPriorityLast(t *testing.T) {
	created := model.At(time.Now())
	items := []model.Reminder{
		{ID: "x", Title: "x", Priority: "urgent", CreatedAt: created},
		{ID: "l", Title: "l", Priority: model.PriorityLow, CreatedAt: created},
	}
	SortReminders(items)
	if items[0].ID != "l" {
		t.Fatalf("expected unknown priority after low, got %v", ids(items))
	}
}

func TestSortStableForIdenticalKeys(t *testing.T) {
	created := model.At(time.Now())
	items := []model.Reminder{
		{ID: "1", Title: "1", Priority: model.PriorityNormal, CreatedAt: created},
		{ID: "2", Title: "2", Priority: model.PriorityNormal, CreatedAt: created},
		{ID: "3", Title: "3", Priority: model.PriorityNormal, CreatedAt: created},
	}
	SortReminders(items)
	if items[0].ID != "1" || items[1].ID != "2" || items[2].ID != "3" {
		t.Fatalf("expected insertion order kept for ties, got %v", ids(items))
	}
}

func reminderGenerator() *rapid.Generator[model.Reminder] {
	return rapid.Custom(func(t *rapid.T) model.Reminder {
		rem := model.Reminder{
			ID:        rapid.StringMatching(`[a-z]{6}`).Draw(t, "id"),
			Title:     "t",
			Completed: rapid.Bool().Draw(t, "completed"),
			Priority:  model.Priority(rapid.SampledFrom([]string{"high", "normal", "low", "weird"}).Draw(t, "priority")),
			CreatedAt: model.FromMillis(rapid.Int64Range(0, 10).Draw(t, "created")),
		}
		if rapid.Bool().Draw(t, "hasDue") {
			rem.DueDate = model.FromMillis(rapid.Int64Range(0, 10).Draw(t, "due")).Ptr()
		}
		return rem
	})
}

func TestCompareIsStrictWeakOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := reminderGenerator().Draw(t, "a")
		b := reminderGenerator().Draw(t, "b")
		c := reminderGenerator().Draw(t, "c")

		if Compare(a, a) != 0 {
			t.Fatal("compare must be irreflexive")
		}
		if Compare(a, b) != -Compare(b, a) {
			t.Fatalf("compare must be antisymmetric: %d vs %d", Compare(a, b), Compare(b, a))
		}
		if Compare(a, b) <= 0 && Compare(b, c) <= 0 && Compare(a, c) > 0 {
			t.Fatal("compare must be transitive")
		}
	})
}

func TestSortedOutputIsOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOf(reminderGenerator()).Draw(t, "items")
		SortReminders(items)
		for i := 1; i < len(items); i++ {
			if Compare(items[i-1], items[i]) > 0 {
				t.Fatalf("items %d and %d out of order", i-1, i)
			}
		}
	})
}

func TestTodayIncludesOverdue(t *testing.T) {
	repo, clock := setupRepo(t)
	yesterday := model.At(clock.now.Add(-24 * time.Hour))
	today := model.At(clock.now.Add(time.Hour))
	next := model.At(clock.now.Add(48 * time.Hour))
	mustCreate(t, repo, ReminderInput{Title: "overdue", DueDate: &yesterday})
	mustCreate(t, repo, ReminderInput{Title: "today", DueDate: &today})
	mustCreate(t, repo, ReminderInput{Title: "later", DueDate: &next})
	mustCreate(t, repo, ReminderInput{Title: "undated"})

	got := ids(repo.Today())
	if len(got) != 2 || got[0] != "overdue" || got[1] != "today" {
		t.Fatalf("unexpected today list: %v", got)
	}
}

func TestTagsAndStats(t *testing.T) {
	repo, clock := setupRepo(t)
	yesterday := model.At(clock.now.Add(-24 * time.Hour))
	mustCreate(t, repo, ReminderInput{Title: "Buy milk #grocery and #ToDo"})
	mustCreate(t, repo, ReminderInput{Title: "Eggs", Notes: "#grocery", Priority: model.PriorityHigh, DueDate: &yesterday, Recurring: model.RecurrenceDaily})

	tags := repo.Tags()
	if len(tags) != 2 || tags[0].Tag != "#grocery" || tags[0].Count != 2 || tags[1].Tag != "#todo" || tags[1].Count != 1 {
		t.Fatalf("unexpected tags: %+v", tags)
	}

	s := repo.Stats()
	if s.Total != 2 || s.Pending != 2 || s.Overdue != 1 || s.HighPriority != 1 || s.Recurring != 1 || s.Tags != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.ByFolder[model.InboxID] != 2 {
		t.Fatalf("unexpected folder counts: %+v", s.ByFolder)
	}
}

func TestTagIndexRebuiltOnEditAndDelete(t *testing.T) {
	repo, _ := setupRepo(t)
	rem := mustCreate(t, repo, ReminderInput{Title: "#a #b"})
	title := "#b"
	if _, err := repo.UpdateReminder(rem.ID, ReminderPatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tags := repo.Tags(); len(tags) != 1 || tags[0].Tag != "#b" {
		t.Fatalf("expected only #b after edit, got %+v", tags)
	}
	if err := repo.DeleteReminder(rem.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tags := repo.Tags(); len(tags) != 0 {
		t.Fatalf("expected no tags after delete, got %+v", tags)
	}
	if n := repo.RebuildTags(); n != 0 {
		t.Fatalf("expected empty rebuild, got %d", n)
	}
}
