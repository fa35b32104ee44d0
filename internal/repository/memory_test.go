package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atinyakov/safeplay/internal/models"
)

func TestMemory_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return created }

	in := models.User{Username: "alice", DisplayName: "alice", PasswordHash: "h1"}
	saved, err := repo.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if !saved.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v; want %v", saved.CreatedAt, created)
	}

	got, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if *got != *saved {
		t.Errorf("FindByUsername = %+v; want %+v", got, saved)
	}

	exists, _ := repo.Exists(ctx, "alice")
	if !exists {
		t.Error("expected alice to exist after Save")
	}
	exists, _ = repo.Exists(ctx, "bob")
	if exists {
		t.Error("expected bob not to exist")
	}
}

func TestMemory_SaveOverwritesKeepingCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }

	if _, err := repo.Save(ctx, models.User{Username: "alice", DisplayName: "A", PasswordHash: "h1"}); err != nil {
		t.Fatal(err)
	}
	repo.now = func() time.Time { return first.Add(time.Hour) }
	saved, err := repo.Save(ctx, models.User{Username: "alice", DisplayName: "B", PasswordHash: "h2"})
	if err != nil {
		t.Fatal(err)
	}
	if saved.DisplayName != "B" || saved.PasswordHash != "h2" {
		t.Errorf("record not overwritten: %+v", saved)
	}
	if !saved.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v; want %v", saved.CreatedAt, first)
	}
}

func TestMemory_Create(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	if err := repo.Create(ctx, models.User{Username: "alice"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, models.User{Username: "alice"}); !errors.Is(err, models.ErrUserExists) {
		t.Errorf("Create duplicate error = %v; want ErrUserExists", err)
	}
}

func TestMemory_FindByDisplayName(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	for _, name := range []string{"zed", "amy", "kim"} {
		if _, err := repo.Save(ctx, models.User{Username: name, DisplayName: "Ace"}); err != nil {
			t.Fatal(err)
		}
	}

	u, err := repo.FindByDisplayName(ctx, "Ace")
	if err != nil {
		t.Fatalf("FindByDisplayName returned error: %v", err)
	}
	if u.Username != "amy" {
		t.Errorf("Username = %q; want smallest %q", u.Username, "amy")
	}

	if _, err := repo.FindByDisplayName(ctx, "Nobody"); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("miss error = %v; want ErrUserNotFound", err)
	}
}

func TestMemory_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	if _, err := repo.Save(ctx, models.User{Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	if err := repo.TouchLastLogin(ctx, "alice", at); err != nil {
		t.Fatalf("TouchLastLogin returned error: %v", err)
	}
	u, _ := repo.FindByUsername(ctx, "alice")
	if u.LastLoginAt == nil || !u.LastLoginAt.Equal(at) {
		t.Errorf("LastLoginAt = %v; want %v", u.LastLoginAt, at)
	}

	// returned records are copies
	*u.LastLoginAt = at.Add(time.Hour)
	again, _ := repo.FindByUsername(ctx, "alice")
	if !again.LastLoginAt.Equal(at) {
		t.Errorf("stored LastLoginAt mutated through returned record: %v", again.LastLoginAt)
	}

	if err := repo.TouchLastLogin(ctx, "ghost", at); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("TouchLastLogin error = %v; want ErrUserNotFound", err)
	}
}

func TestMemory_EmailUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	if err := repo.Create(ctx, models.User{Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.Create(ctx, models.User{Username: "bob", Email: "a@example.com"}); !errors.Is(err, models.ErrUserExists) {
		t.Errorf("Create with taken email error = %v; want ErrUserExists", err)
	}
	if _, err := repo.Save(ctx, models.User{Username: "bob", Email: "a@example.com"}); !errors.Is(err, models.ErrUserExists) {
		t.Errorf("Save with taken email error = %v; want ErrUserExists", err)
	}
	// the owner may keep its own email on overwrite
	if _, err := repo.Save(ctx, models.User{Username: "alice", Email: "a@example.com", DisplayName: "A"}); err != nil {
		t.Errorf("Save of owner returned error: %v", err)
	}
	// users without email never collide
	for _, name := range []string{"carol", "dave"} {
		if err := repo.Create(ctx, models.User{Username: name}); err != nil {
			t.Errorf("Create(%s) returned error: %v", name, err)
		}
	}
}

func TestMemory_ExistsBy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	if err := repo.Create(ctx, models.User{Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		field   models.LookupField
		value   string
		want    bool
		wantErr error
	}{
		{models.FieldUsername, "alice", true, nil},
		{models.FieldUsername, "bob", false, nil},
		{models.FieldEmail, "a@example.com", true, nil},
		{models.FieldEmail, "", false, nil},
		{models.LookupField("display_name"), "alice", false, models.ErrUnknownField},
	}
	for _, tc := range cases {
		got, err := repo.ExistsBy(ctx, tc.field, tc.value)
		if !errors.Is(err, tc.wantErr) || got != tc.want {
			t.Errorf("ExistsBy(%s, %q) = %v, %v; want %v, %v", tc.field, tc.value, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestMemory_RoleAndDisabled(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	saved, err := repo.Save(ctx, models.User{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Role != models.RolePlayer || !saved.Active() {
		t.Errorf("defaults = %q/%v; want player/active", saved.Role, saved.Active())
	}

	if err := repo.SetDisabled(ctx, "alice", true); err != nil {
		t.Fatalf("SetDisabled returned error: %v", err)
	}
	u, _ := repo.FindByUsername(ctx, "alice")
	if u.Active() {
		t.Error("expected alice to be disabled")
	}
	if err := repo.SetDisabled(ctx, "ghost", true); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("SetDisabled error = %v; want ErrUserNotFound", err)
	}
}
