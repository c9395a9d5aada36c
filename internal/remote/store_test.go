package remote

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client), mr
}

func TestPutFactAndGetAllFacts(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	fact := Fact{
		UserID:        "u1",
		HabitID:       7,
		DateKey:       "2025-03-03",
		ProgressCount: 5,
		LastLoggedAt:  time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
	}
	if err := store.PutFact(ctx, fact); err != nil {
		t.Fatalf("PutFact returned error: %v", err)
	}

	facts, err := store.GetAllFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllFacts returned error: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].ProgressCount != 5 || facts[0].HabitID != 7 || facts[0].DateKey != "2025-03-03" {
		t.Fatalf("unexpected fact: %+v", facts[0])
	}
}

func TestPutFactLastWriteWins(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	older := Fact{
		UserID: "u1", HabitID: 7, DateKey: "2025-03-03",
		ProgressCount: 3,
		LastLoggedAt:  time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC),
	}
	newer := Fact{
		UserID: "u1", HabitID: 7, DateKey: "2025-03-03",
		ProgressCount: 8,
		LastLoggedAt:  time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC),
	}

	if err := store.PutFact(ctx, newer); err != nil {
		t.Fatalf("PutFact newer returned error: %v", err)
	}
	// 迟到的旧写入不得覆盖更新的远端状态
	if err := store.PutFact(ctx, older); err != nil {
		t.Fatalf("PutFact older returned error: %v", err)
	}

	facts, err := store.GetAllFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllFacts returned error: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].ProgressCount != 8 {
		t.Fatalf("expected newer progress 8 to survive, got %d", facts[0].ProgressCount)
	}

	// 等值或更新的写入正常覆盖
	newest := newer
	newest.ProgressCount = 9
	newest.LastLoggedAt = newer.LastLoggedAt.Add(time.Hour)
	if err := store.PutFact(ctx, newest); err != nil {
		t.Fatalf("PutFact newest returned error: %v", err)
	}
	facts, _ = store.GetAllFacts(ctx, "u1")
	if facts[0].ProgressCount != 9 {
		t.Fatalf("expected progress 9 after newest write, got %d", facts[0].ProgressCount)
	}
}

func TestGetAllFactsScopedToUser(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	stamp := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	if err := store.PutFact(ctx, Fact{UserID: "u1", HabitID: 1, DateKey: "2025-03-03", ProgressCount: 1, LastLoggedAt: stamp}); err != nil {
		t.Fatalf("PutFact returned error: %v", err)
	}
	if err := store.PutFact(ctx, Fact{UserID: "u2", HabitID: 1, DateKey: "2025-03-03", ProgressCount: 2, LastLoggedAt: stamp}); err != nil {
		t.Fatalf("PutFact returned error: %v", err)
	}

	facts, err := store.GetAllFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllFacts returned error: %v", err)
	}
	if len(facts) != 1 || facts[0].UserID != "u1" {
		t.Fatalf("expected only u1 facts, got %+v", facts)
	}
}

func TestGetAllFactsSkipsMalformedValues(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	stamp := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	if err := store.PutFact(ctx, Fact{UserID: "u1", HabitID: 1, DateKey: "2025-03-03", ProgressCount: 1, LastLoggedAt: stamp}); err != nil {
		t.Fatalf("PutFact returned error: %v", err)
	}
	mr.Set(KeyPrefix+"u1:2:2025-03-04", "not-json")

	facts, err := store.GetAllFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllFacts returned error: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected malformed value to be skipped, got %d facts", len(facts))
	}
}
