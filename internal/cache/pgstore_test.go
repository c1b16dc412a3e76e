package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ultratest-hq/ultra/internal/cache"
	"github.com/ultratest-hq/ultra/internal/testutil"
)

func setupPGStore(t *testing.T) *cache.PGStore {
	t.Helper()

	testutil.RequireDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := cache.NewPGStore(ctx, testutil.GetTestDBURL())
	if err != nil {
		t.Fatalf("failed to create pg store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPGStore_RoundTrip(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()

	want := &cache.Entry{
		TestName:      "test_payment_flow",
		TestPath:      "tests/test_payment_flow.py",
		FileHash:      "cafebabe",
		Result:        json.RawMessage(`{"passed":true,"duration":2100}`),
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		Dependencies:  []string{"app/payment.py", "app/db.py"},
		TTLHours:      48,
		BusinessValue: 0.8,
		AccessCount:   3,
	}
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, want.TestName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil for a stored entry")
	}
	if got.FileHash != want.FileHash || got.TTLHours != want.TTLHours ||
		got.BusinessValue != want.BusinessValue || got.AccessCount != want.AccessCount {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if len(got.Dependencies) != 2 {
		t.Errorf("dependencies = %v, want 2 entries", got.Dependencies)
	}
}

func TestPGStore_Upsert(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()

	entry := &cache.Entry{
		TestName:  "test_upsert",
		TestPath:  "tests/test_upsert.py",
		FileHash:  "v1",
		Result:    json.RawMessage(`{}`),
		Timestamp: time.Now(),
		TTLHours:  24,
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	entry.FileHash = "v2"
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("upsert Put() error: %v", err)
	}

	got, err := store.Get(ctx, "test_upsert")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.FileHash != "v2" {
		t.Errorf("file hash = %s after upsert, want v2", got.FileHash)
	}
}

func TestPGStore_GetAbsent(t *testing.T) {
	store := setupPGStore(t)

	got, err := store.Get(context.Background(), "never_stored")
	if err != nil {
		t.Fatalf("Get(absent) error: %v", err)
	}
	if got != nil {
		t.Errorf("Get(absent) = %+v, want nil", got)
	}
}

func TestPGStore_DeleteOlderThan(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()

	now := time.Now()
	for name, age := range map[string]time.Duration{
		"test_pg_fresh": 0,
		"test_pg_stale": 72 * time.Hour,
	} {
		err := store.Put(ctx, &cache.Entry{
			TestName:  name,
			TestPath:  "tests/" + name + ".py",
			FileHash:  "x",
			Result:    json.RawMessage(`{}`),
			Timestamp: now.Add(-age),
			TTLHours:  24,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.DeleteOlderThan(ctx, now.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got, _ := store.Get(ctx, "test_pg_stale"); got != nil {
		t.Error("stale entry survived")
	}
}
