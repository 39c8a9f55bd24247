package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func tempRedis(t *testing.T, historyCap int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, RedisConfig{Prefix: "test", HistoryCap: historyCap})
	t.Cleanup(func() { s.Close() })
	return s
}

// stores runs fn against every SessionStore implementation.
func stores(t *testing.T, fn func(t *testing.T, s SessionStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, tempDB(t)) })
	t.Run("redis", func(t *testing.T) { fn(t, tempRedis(t, 50)) })
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		sess := NewSession("s1")
		sess.Metrics.Pain = 0.42
		sess.Voice = voice.Sam
		sess.Phase = phase.Transition
		sess.Turn = 3
		sess.Preferences = map[voice.ID]float64{voice.Iskra: 0.2}
		sess.Append(playbook.Message{Role: playbook.RoleUser, Text: "hello"}, 10)

		saved, err := s.Save(ctx, sess)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if saved.VersionID == "" {
			t.Fatal("expected non-empty version ID")
		}
		if saved.ParentID != "" {
			t.Fatalf("expected empty parent, got %s", saved.ParentID)
		}

		got, err := s.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.VersionID != saved.VersionID {
			t.Fatalf("expected %s, got %s", saved.VersionID, got.VersionID)
		}
		if got.Metrics != sess.Metrics {
			t.Fatalf("metrics mismatch: %+v vs %+v", got.Metrics, sess.Metrics)
		}
		if got.Voice != voice.Sam || got.Phase != phase.Transition || got.Turn != 3 {
			t.Fatalf("unexpected fields: %s %s %d", got.Voice, got.Phase, got.Turn)
		}
		if got.Preferences[voice.Iskra] != 0.2 {
			t.Fatalf("preferences lost: %v", got.Preferences)
		}
		if got.LastUser() != "hello" {
			t.Fatalf("history lost: %+v", got.History)
		}
	})
}

func TestLoadUnknownSession(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		_, err := s.Load(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSaveChainsParents(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		v1, err := s.Save(ctx, NewSession("s1"))
		if err != nil {
			t.Fatalf("Save v1: %v", err)
		}
		next := v1
		next.Turn = 1
		v2, err := s.Save(ctx, next)
		if err != nil {
			t.Fatalf("Save v2: %v", err)
		}
		if v2.ParentID != v1.VersionID {
			t.Fatalf("expected parent %s, got %s", v1.VersionID, v2.ParentID)
		}
		if v2.VersionID == v1.VersionID {
			t.Fatal("each save must mint a new version")
		}
	})
}

func TestRollbackRestoresPriorVersion(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		v1, _ := s.Save(ctx, NewSession("s1"))
		next := v1
		next.Metrics.Pain = 0.9
		next.Turn = 1
		if _, err := s.Save(ctx, next); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := s.Rollback(ctx, "s1", v1.VersionID); err != nil {
			t.Fatalf("Rollback: %v", err)
		}

		cur, err := s.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cur.VersionID != v1.VersionID {
			t.Fatalf("expected rollback to %s, got %s", v1.VersionID, cur.VersionID)
		}
		if cur.Metrics.Pain != v1.Metrics.Pain {
			t.Fatalf("expected pain %f, got %f", v1.Metrics.Pain, cur.Metrics.Pain)
		}
	})
}

func TestRollbackUnknownVersion(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		if _, err := s.Save(ctx, NewSession("s1")); err != nil {
			t.Fatalf("Save: %v", err)
		}
		other, _ := s.Save(ctx, NewSession("s2"))

		if err := s.Rollback(ctx, "s1", "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Rollback(ctx, "s1", other.VersionID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("version of another session must not be accepted, got %v", err)
		}
	})
}

func TestHistoryNewestFirst(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		sess := NewSession("s1")
		for i := 0; i < 4; i++ {
			sess.Turn = i
			if _, err := s.Save(ctx, sess); err != nil {
				t.Fatalf("Save %d: %v", i, err)
			}
		}

		hist, err := s.History(ctx, "s1", 3)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != 3 {
			t.Fatalf("expected 3 versions, got %d", len(hist))
		}
		for i, want := range []int{3, 2, 1} {
			if hist[i].Turn != want {
				t.Errorf("history[%d]: expected turn %d, got %d", i, want, hist[i].Turn)
			}
		}
	})
}

func TestListSessions(t *testing.T) {
	stores(t, func(t *testing.T, s SessionStore) {
		ctx := context.Background()
		for _, id := range []string{"b", "a", "c", "a"} {
			if _, err := s.Save(ctx, NewSession(id)); err != nil {
				t.Fatalf("Save %s: %v", id, err)
			}
		}
		ids, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
			t.Fatalf("unexpected ids: %v", ids)
		}
	})
}

func TestRedisHistoryCap(t *testing.T) {
	s := tempRedis(t, 2)
	ctx := context.Background()
	first, _ := s.Save(ctx, NewSession("s1"))
	for i := 1; i < 4; i++ {
		sess := NewSession("s1")
		sess.Turn = i
		if _, err := s.Save(ctx, sess); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	hist, err := s.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
	if err := s.Rollback(ctx, "s1", first.VersionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("trimmed version should be gone, got %v", err)
	}
}

func TestSessionAppendKeepsLimit(t *testing.T) {
	sess := NewSession("s1")
	for _, text := range []string{"a", "b", "c"} {
		sess.Append(playbook.Message{Role: playbook.RoleUser, Text: text}, 2)
	}
	if len(sess.History) != 2 || sess.History[0].Text != "b" {
		t.Fatalf("unexpected history: %+v", sess.History)
	}
	sess.Append(playbook.Message{Role: playbook.RoleAssistant, Text: "reply"}, 2)
	if sess.LastUser() != "c" {
		t.Fatalf("expected last user c, got %q", sess.LastUser())
	}
}
