package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

func TestResetKeepsIdentity(t *testing.T) {
	s := New()
	created := s.CreatedAt
	s.Page = PageChat
	s.Credentials = &db.Credentials{User: "app", DBType: db.DatabaseTypeMySQL}
	s.SchemaKey = "shop_mysql_abc.sql"
	s.GeneratedSQL = "SELECT 1"
	s.QueryResponse = "one"
	s.ShowSQL = true
	s.FormSubmitted = true

	id := s.ID
	s.Reset()

	if s.ID != id || !s.CreatedAt.Equal(created) {
		t.Fatalf("identity changed: %s %v", s.ID, s.CreatedAt)
	}
	if s.Page != PageConnect || s.Connected() || s.SchemaKey != "" || s.GeneratedSQL != "" ||
		s.QueryResponse != "" || s.ShowSQL || s.FormSubmitted {
		t.Fatalf("state not reset: %+v", s)
	}
}

func TestFlashIsOneShot(t *testing.T) {
	s := New()
	s.SetFlash(FlashSuccess, "Connected! Redirecting to chat...")
	f := s.TakeFlash()
	if f == nil || f.Kind != FlashSuccess || f.Message != "Connected! Redirecting to chat..." {
		t.Fatalf("TakeFlash() = %+v", f)
	}
	if s.TakeFlash() != nil {
		t.Fatal("flash should be cleared")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := New()
	s.Credentials = &db.Credentials{User: "app"}
	s.Tables = []string{"orders"}
	c := s.Clone()
	c.Credentials.User = "other"
	c.Tables[0] = "changed"
	if s.Credentials.User != "app" || s.Tables[0] != "orders" {
		t.Fatalf("clone shares memory: %+v", s)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute, nil)
	store.now = func() time.Time { return now }

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}

	s := New()
	s.Page = PageChat
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil || got.Page != PageChat {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	got.Page = PageConnect
	if again, _ := store.Get(ctx, s.ID); again.Page != PageChat {
		t.Fatal("mutating a loaded session must not change the store")
	}

	now = now.Add(30 * time.Second)
	other := New()
	_ = store.Save(ctx, other)
	if n, _ := store.Count(ctx); n != 2 {
		t.Fatalf("Count() = %d, want 2", n)
	}

	now = now.Add(45 * time.Second)
	if n, _ := store.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep() removed %d, want 1", n)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired Get() error = %v", err)
	}
	if _, err := store.Get(ctx, other.ID); err != nil {
		t.Fatalf("Get(other) error = %v", err)
	}

	if err := store.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("Count() after delete = %d", n)
	}
}

func TestSealerRoundTrip(t *testing.T) {
	s := NewSealer("secret")
	box, err := s.Seal([]byte(`{"password":"pw"}`))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	again, _ := s.Seal([]byte(`{"password":"pw"}`))
	if box == again {
		t.Fatal("nonces should differ between seals")
	}
	plain, err := s.Open(box)
	if err != nil || string(plain) != `{"password":"pw"}` {
		t.Fatalf("Open() = %q, %v", plain, err)
	}

	if _, err := NewSealer("other").Open(box); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("Open() with wrong key error = %v", err)
	}
	if _, err := s.Open("not base64!"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("Open() garbage error = %v", err)
	}
	if _, err := s.Open("c2hvcnQ="); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("Open() short error = %v", err)
	}
}
