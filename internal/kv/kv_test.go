package kv

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Get = %q, want v2", got)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "todos.db")
	s, err := OpenBolt(path, "")
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	exercise(t, s)

	if err := s.Put(context.Background(), "persist", []byte("yes")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenBolt(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "persist")
	if err != nil || string(got) != "yes" {
		t.Fatalf("value did not survive reopen: %q, %v", got, err)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0", "test:")
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer s.Close()
	exercise(t, s)

	if err := s.Put(context.Background(), "k", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("expected prefixed key in redis")
	}
}

func exerciseUpdate(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	var seen []byte
	if err := s.Update(ctx, "counter", func(cur []byte) ([]byte, error) {
		seen = cur
		return []byte("1"), nil
	}); err != nil {
		t.Fatalf("Update absent key: %v", err)
	}
	if seen != nil {
		t.Fatalf("absent key should read as nil, got %q", seen)
	}

	boom := errors.New("boom")
	if err := s.Update(ctx, "counter", func([]byte) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}
	if got, _ := s.Get(ctx, "counter"); string(got) != "1" {
		t.Fatalf("aborted Update wrote %q", got)
	}
}

// incrementConcurrently has n independent writers bump a decimal counter and
// checks no increment was lost.
func incrementConcurrently(t *testing.T, stores []Store, perWriter int) {
	t.Helper()
	ctx := context.Background()
	var wg sync.WaitGroup
	for _, s := range stores {
		wg.Add(1)
		go func(s Store) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := s.Update(ctx, "hits", func(cur []byte) ([]byte, error) {
					n, _ := strconv.Atoi(string(cur))
					return []byte(strconv.Itoa(n + 1)), nil
				})
				if err != nil {
					t.Errorf("Update: %v", err)
					return
				}
			}
		}(s)
	}
	wg.Wait()
	got, err := stores[0].Get(ctx, "hits")
	if err != nil {
		t.Fatal(err)
	}
	if want := strconv.Itoa(len(stores) * perWriter); string(got) != want {
		t.Fatalf("counter = %s, want %s", got, want)
	}
}

func TestMemory_Update(t *testing.T) {
	m := NewMemory()
	exerciseUpdate(t, m)
	incrementConcurrently(t, []Store{m, m, m}, 50)
}

func TestBolt_Update(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "todos.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseUpdate(t, s)
	incrementConcurrently(t, []Store{s, s}, 25)
}

func TestRedis_UpdateAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	var stores []Store
	for i := 0; i < 3; i++ {
		s, err := DialRedis(ctx, "redis://"+mr.Addr(), "test:")
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		stores = append(stores, s)
	}
	exerciseUpdate(t, stores[0])
	incrementConcurrently(t, stores, 30)
}
