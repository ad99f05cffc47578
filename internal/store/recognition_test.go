package store

import (
	"errors"
	"testing"
	"time"
)

func TestRecognitionRepository_CreateAndList(t *testing.T) {
	repo := newTestStore(t).Recognitions()

	base := time.Now().Add(-time.Minute)
	for i, label := range []string{"hello", "thanks", "please"} {
		rec := &Recognition{
			SessionID:   "s1",
			Label:       label,
			Probability: 0.9,
			TimestampMs: int64(i * 100),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if rec.ID == "" {
			t.Fatal("Create() should assign an ID")
		}
	}
	if err := repo.Create(&Recognition{SessionID: "s2", Label: "yes", CreatedAt: base}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	all, err := repo.List("", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List() returned %d, want 4", len(all))
	}

	latest, err := repo.List("s1", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(latest) != 2 || latest[0].Label != "please" || latest[1].Label != "thanks" {
		t.Errorf("List(s1, 2) = %+v", latest)
	}
	if latest[0].TimestampMs != 200 {
		t.Errorf("TimestampMs = %d, want 200", latest[0].TimestampMs)
	}
}

func TestRecognitionRepository_CountAndClear(t *testing.T) {
	repo := newTestStore(t).Recognitions()

	for i := 0; i < 3; i++ {
		if err := repo.Create(&Recognition{SessionID: "s", Label: "x"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if n, err := repo.Count(); err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}

	removed, err := repo.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Clear() removed %d, want 3", removed)
	}
	if n, _ := repo.Count(); n != 0 {
		t.Errorf("Count() after clear = %d", n)
	}
}

func TestSettingsRepository(t *testing.T) {
	repo := newTestStore(t).Settings()

	if _, err := repo.Get("threshold"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if v, err := repo.GetOr("threshold", "0.5"); err != nil || v != "0.5" {
		t.Errorf("GetOr() = %q, %v", v, err)
	}

	if err := repo.Set("threshold", "0.7"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set("threshold", "0.8"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, err := repo.Get("threshold"); err != nil || v != "0.8" {
		t.Errorf("Get() = %q, %v; want 0.8", v, err)
	}
}
