package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "hoshi-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

// --- History ---

func TestHistory_EmptyChat(t *testing.T) {
	s := newTestStore(t)

	turns, err := s.History(context.Background(), 42, 40)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", turns)
	}
}

func TestHistory_BoundedAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		if err := s.AppendTurn(ctx, 7, role, fmt.Sprintf("msg-%02d", i)); err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
	}

	turns, err := s.History(ctx, 7, 40)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 40 {
		t.Fatalf("expected 40 turns, got %d", len(turns))
	}
	if turns[0].Content != "msg-10" {
		t.Errorf("first turn: got %q, want %q", turns[0].Content, "msg-10")
	}
	if turns[39].Content != "msg-49" {
		t.Errorf("last turn: got %q, want %q", turns[39].Content, "msg-49")
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].ID <= turns[i-1].ID {
			t.Fatalf("turns not in ascending id order at %d", i)
		}
	}
}

func TestHistory_DefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < store.DefaultHistoryLimit+5; i++ {
		if err := s.AppendTurn(ctx, 1, store.RoleUser, "x"); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}
	turns, err := s.History(ctx, 1, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != store.DefaultHistoryLimit {
		t.Errorf("expected %d turns, got %d", store.DefaultHistoryLimit, len(turns))
	}
}

func TestAppendTurn_InvalidRole(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendTurn(context.Background(), 1, store.Role("system"), "hi")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistory_IsolatedPerChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendTurn(ctx, 1, store.RoleUser, "one")
	_ = s.AppendTurn(ctx, 2, store.RoleUser, "two")

	if err := s.ClearHistory(ctx, 1); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if err := s.ClearHistory(ctx, 1); err != nil {
		t.Fatalf("ClearHistory (second): %v", err)
	}

	one, _ := s.History(ctx, 1, 10)
	two, _ := s.History(ctx, 2, 10)
	if len(one) != 0 {
		t.Errorf("chat 1: expected empty history, got %d turns", len(one))
	}
	if len(two) != 1 || two[0].Content != "two" {
		t.Errorf("chat 2: unexpected history %+v", two)
	}
}

func TestClearAllHistory_KeepsAccessSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddAdmin(ctx, 100)
	_ = s.AddToBlacklist(ctx, 200)
	_ = s.AppendTurn(ctx, 1, store.RoleUser, "a")
	_ = s.AppendTurn(ctx, 2, store.RoleAssistant, "b")

	if err := s.ClearAllHistory(ctx); err != nil {
		t.Fatalf("ClearAllHistory: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Users != 0 || st.Turns != 0 {
		t.Errorf("expected empty stats, got %+v", st)
	}
	if ok, _ := s.IsAdmin(ctx, 100); !ok {
		t.Error("admin should survive ClearAllHistory")
	}
	if ok, _ := s.IsBlacklisted(ctx, 200); !ok {
		t.Error("blacklist entry should survive ClearAllHistory")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendTurn(ctx, 1, store.RoleUser, "a")
	_ = s.AppendTurn(ctx, 1, store.RoleAssistant, "b")
	_ = s.AppendTurn(ctx, 2, store.RoleUser, "c")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Users != 2 {
		t.Errorf("Users: got %d, want 2", st.Users)
	}
	if st.Turns != 3 {
		t.Errorf("Turns: got %d, want 3", st.Turns)
	}
}

func TestAppendTurn_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.AppendTurn(ctx, int64(i%3), store.RoleUser, "hello"); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Turns != 20 {
		t.Errorf("expected 20 turns, got %d", st.Turns)
	}
}

// --- Admins and blacklist ---

func TestBlacklist_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.AddToBlacklist(ctx, 9); err != nil {
			t.Fatalf("AddToBlacklist #%d: %v", i, err)
		}
	}
	list, err := s.ListBlacklist(ctx)
	if err != nil {
		t.Fatalf("ListBlacklist: %v", err)
	}
	if len(list) != 1 || list[0] != 9 {
		t.Errorf("expected [9], got %v", list)
	}

	for i := 0; i < 2; i++ {
		if err := s.RemoveFromBlacklist(ctx, 9); err != nil {
			t.Fatalf("RemoveFromBlacklist #%d: %v", i, err)
		}
	}
	if ok, _ := s.IsBlacklisted(ctx, 9); ok {
		t.Error("expected 9 to be removed from blacklist")
	}
}

func TestAdmins_AddIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddAdmin(ctx, 1)
	_ = s.AddAdmin(ctx, 1)
	_ = s.AddAdmin(ctx, 2)

	admins, err := s.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 2 {
		t.Errorf("expected 2 admins, got %v", admins)
	}
}

func TestRemoveAdmin_LastAdminRefused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddAdmin(ctx, 1)
	_ = s.AddAdmin(ctx, 2)

	if err := s.RemoveAdmin(ctx, 2); err != nil {
		t.Fatalf("RemoveAdmin(2): %v", err)
	}
	err := s.RemoveAdmin(ctx, 1)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error removing last admin, got %v", err)
	}
	if ok, _ := s.IsAdmin(ctx, 1); !ok {
		t.Error("last admin must remain after refused removal")
	}
}

func TestRemoveAdmin_NonMemberNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddAdmin(ctx, 1)
	if err := s.RemoveAdmin(ctx, 555); err != nil {
		t.Fatalf("removing a non-admin should be a no-op, got %v", err)
	}
}

// --- Audit ---

func TestWriteAudit_RedactsPayloadAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.WriteAudit(ctx, "t_1", 1, "admin.add", "2", "success", store.AuditPayload{"token": "abcd1234"}, ""); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := s.WriteAudit(ctx, "t_2", 1, "user.block", "3", "error", nil, "boom"); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}

	entries, err := s.AuditLog(ctx, 10)
	if err != nil {
		t.Fatalf("AuditLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "user.block" {
		t.Errorf("newest first: got %q", entries[0].Action)
	}
	if !entries[0].ErrorMessage.Valid || entries[0].ErrorMessage.String != "boom" {
		t.Errorf("unexpected error message %+v", entries[0].ErrorMessage)
	}
	if entries[1].PayloadJSON.String != `{"token":"[REDACTED]"}` {
		t.Errorf("payload not redacted: %q", entries[1].PayloadJSON.String)
	}

	byTrace, err := s.AuditByTrace(ctx, "t_1")
	if err != nil {
		t.Fatalf("AuditByTrace: %v", err)
	}
	if len(byTrace) != 1 || byTrace[0].Target.String != "2" {
		t.Errorf("unexpected trace entries %+v", byTrace)
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "hoshi-reopen-*.db")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = s.AppendTurn(context.Background(), 1, store.RoleUser, "persisted")
	s.Close()

	s2, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	turns, err := s2.History(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "persisted" {
		t.Errorf("unexpected history after reopen: %+v", turns)
	}
}

func TestIsConflictError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table: history"), false},
	}
	for _, c := range cases {
		if got := store.IsConflictError(c.err); got != c.want {
			t.Errorf("IsConflictError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
