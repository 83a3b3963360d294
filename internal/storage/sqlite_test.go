package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func entryAt(id, food string, calories int, loggedAt time.Time) FoodEntry {
	return FoodEntry{
		ID:       id,
		Food:     food,
		Quantity: 1,
		Unit:     "piece",
		Calories: calories,
		LoggedAt: loggedAt,
	}
}

func TestAppendAndQueryEntriesForDay(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	if err := store.AppendEntry("s1", "2026-08-30", entryAt("e2", "eggs", 140, base.Add(time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendEntry("s1", "2026-08-30", entryAt("e1", "banana", 89, base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendEntry("s2", "2026-08-30", entryAt("e3", "coffee", 2, base)); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := store.EntriesForDay("s1", "2026-08-30")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries for s1, got %d", len(entries))
	}
	if entries[0].Food != "banana" || entries[1].Food != "eggs" {
		t.Fatalf("expected chronological order, got %+v", entries)
	}
	if !entries[0].LoggedAt.Equal(base) {
		t.Fatalf("expected timestamp round-trip, got %v", entries[0].LoggedAt)
	}

	other, err := store.EntriesForDay("s1", "2026-08-29")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no entries for another day, got %d", len(other))
	}
}

func TestDeleteByFoodIsCaseInsensitive(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	for i, food := range []string{"banana", "BANANA", "coffee"} {
		entry := entryAt(fmt.Sprintf("e%d", i), food, 89, now.Add(time.Duration(i)*time.Minute))
		if err := store.AppendEntry("s1", "2026-08-30", entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := store.DeleteByFood("s1", "2026-08-30", "  Banana ")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected both bananas removed, got %d", removed)
	}

	entries, err := store.EntriesForDay("s1", "2026-08-30")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].Food != "coffee" {
		t.Fatalf("expected only coffee left, got %+v", entries)
	}

	removed, err = store.DeleteByFood("s1", "2026-08-30", "pizza")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no rows removed for unknown food, got %d", removed)
	}
}

func TestClearDayRemovesOnlyThatDay(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	if err := store.AppendEntry("s1", "2026-08-29", entryAt("e1", "banana", 89, now.AddDate(0, 0, -1))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendEntry("s1", "2026-08-30", entryAt("e2", "eggs", 140, now)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.ClearDay("s1", "2026-08-30"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	today, err := store.EntriesForDay("s1", "2026-08-30")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(today) != 0 {
		t.Fatalf("expected cleared day empty, got %d entries", len(today))
	}

	yesterday, err := store.EntriesForDay("s1", "2026-08-29")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(yesterday) != 1 {
		t.Fatalf("expected previous day untouched, got %d entries", len(yesterday))
	}
}

func TestRecentEntriesOrderAndLimit(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		loggedAt := base.AddDate(0, 0, i)
		entry := entryAt(fmt.Sprintf("e%d", i), fmt.Sprintf("food-%d", i), 100, loggedAt)
		if err := store.AppendEntry("s1", loggedAt.Format("2006-01-02"), entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := store.RecentEntries("s1", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected limit applied, got %d", len(entries))
	}
	if entries[0].Food != "food-4" || entries[2].Food != "food-2" {
		t.Fatalf("expected most recent first, got %+v", entries)
	}

	entries, err = store.RecentEntries("s1", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected default limit to cover all rows, got %d", len(entries))
	}
}
