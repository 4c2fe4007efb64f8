package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"chanwatch_bot/internal/model"
)

var (
	ignoreBoardTS   = cmpopts.IgnoreFields(model.BoardSubscription{}, "CreatedAt", "LastCheckAt")
	ignoreRuleTS    = cmpopts.IgnoreFields(model.FilterRule{}, "CreatedAt")
	ignoreWatchedTS = cmpopts.IgnoreFields(model.WatchedThread{}, "CreatedAt")
)

var (
	boardG = model.BoardDescriptor{Site: "4chan", Code: "g"}
	boardV = model.BoardDescriptor{Site: "4chan", Code: "v"}
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createRule(t *testing.T, s *SQLite, chatID int64, pattern string) model.FilterRule {
	t.Helper()
	r := model.FilterRule{
		ChatID:    chatID,
		Enabled:   true,
		Pattern:   pattern,
		Type:      model.TypeComment,
		Action:    model.ActionHide,
		AllBoards: true,
	}
	if err := s.CreateRule(context.Background(), &r); err != nil {
		t.Fatalf("create rule %q: %v", pattern, err)
	}
	return r
}

func rulePatterns(t *testing.T, s *SQLite, chatID int64) []string {
	t.Helper()
	rules, err := s.ListRules(context.Background(), chatID)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	var out []string
	for i, r := range rules {
		if r.Position != i+1 {
			t.Errorf("rule %q at index %d has position %d", r.Pattern, i, r.Position)
		}
		out = append(out, r.Pattern)
	}
	return out
}

func TestRuleCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		rule model.FilterRule
	}{
		{
			name: "hide on all boards",
			rule: model.FilterRule{
				ChatID: 1, Enabled: true, Pattern: "linux", Type: model.TypeComment | model.TypeSubject,
				Action: model.ActionHide, AllBoards: true,
			},
		},
		{
			name: "color on specific boards",
			rule: model.FilterRule{
				ChatID: 1, Enabled: true, Pattern: `/^!!tripcode$/`, Type: model.TypeTripcode,
				Action: model.ActionColor, Color: 0xffff0000,
				Boards:         []model.BoardDescriptor{boardG, boardV},
				ApplyToReplies: true, OnlyOnOP: true, ApplyToSaved: true,
			},
		},
		{
			name: "disabled watch rule",
			rule: model.FilterRule{
				ChatID: 1, Enabled: false, Pattern: `"desktop thread"`, Type: model.TypeSubject,
				Action: model.ActionWatch, AllBoards: true,
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			if err := s.CreateRule(ctx, &r); err != nil {
				t.Fatalf("create: %v", err)
			}
			if r.ID == 0 {
				t.Fatal("expected non-zero ID")
			}
			if diff := cmp.Diff(i+1, r.Position); diff != "" {
				t.Errorf("position (-want +got):\n%s", diff)
			}

			got, err := s.GetRule(ctx, r.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := tt.rule
			want.ID = r.ID
			want.Position = i + 1
			if diff := cmp.Diff(want, *got, ignoreRuleTS); diff != "" {
				t.Errorf("GetRule mismatch (-want +got):\n%s", diff)
			}
		})
	}

	all, err := s.ListRules(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(len(tests), len(all)); diff != "" {
		t.Fatalf("rule count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.BoardDescriptor{boardG, boardV}, all[1].Boards); diff != "" {
		t.Errorf("boards of listed rule (-want +got):\n%s", diff)
	}

	other, err := s.ListRules(ctx, 2)
	if err != nil {
		t.Fatalf("list other chat: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no rules for other chat, got %d", len(other))
	}
}

func TestUpdateRule(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	r := createRule(t, s, 1, "old")
	createRule(t, s, 1, "second")

	r.Pattern = "new"
	r.Type = model.TypeSubject
	r.Action = model.ActionColor
	r.Color = 0xff00ff00
	r.AllBoards = false
	r.Boards = []model.BoardDescriptor{boardV}
	r.OnlyOnOP = true
	if err := s.UpdateRule(ctx, &r); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(r, *got, ignoreRuleTS); diff != "" {
		t.Errorf("UpdateRule mismatch (-want +got):\n%s", diff)
	}

	missing := model.FilterRule{ID: 999, Pattern: "x"}
	if err := s.UpdateRule(ctx, &missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRuleEnabled(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	r := createRule(t, s, 1, "toggle")

	if err := s.SetRuleEnabled(ctx, r.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(false, got.Enabled); diff != "" {
		t.Errorf("Enabled (-want +got):\n%s", diff)
	}

	if err := s.SetRuleEnabled(ctx, 999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMoveRule(t *testing.T) {
	tests := []struct {
		name     string
		move     string
		position int
		want     []string
	}{
		{name: "move up", move: "d", position: 2, want: []string{"a", "d", "b", "c"}},
		{name: "move down", move: "a", position: 3, want: []string{"b", "c", "a", "d"}},
		{name: "same position", move: "b", position: 2, want: []string{"a", "b", "c", "d"}},
		{name: "clamped high", move: "b", position: 99, want: []string{"a", "c", "d", "b"}},
		{name: "clamped low", move: "c", position: -5, want: []string{"c", "a", "b", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestDB(t)
			ids := map[string]int64{}
			for _, p := range []string{"a", "b", "c", "d"} {
				ids[p] = createRule(t, s, 1, p).ID
			}
			createRule(t, s, 2, "other chat")

			if err := s.MoveRule(ctx, ids[tt.move], tt.position); err != nil {
				t.Fatalf("move: %v", err)
			}
			if diff := cmp.Diff(tt.want, rulePatterns(t, s, 1)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"other chat"}, rulePatterns(t, s, 2)); diff != "" {
				t.Errorf("other chat changed (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("missing rule", func(t *testing.T) {
		s := newTestDB(t)
		if err := s.MoveRule(context.Background(), 42, 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteRuleCompactsPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	createRule(t, s, 1, "a")
	b := createRule(t, s, 1, "b")
	createRule(t, s, 1, "c")
	b.AllBoards = false
	b.Boards = []model.BoardDescriptor{boardG}
	if err := s.UpdateRule(ctx, &b); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.DeleteRule(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, rulePatterns(t, s, 1)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetRule(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted rule, got %v", err)
	}
	if err := s.DeleteRule(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	d := createRule(t, s, 1, "d")
	if diff := cmp.Diff(3, d.Position); diff != "" {
		t.Errorf("new rule position (-want +got):\n%s", diff)
	}
}

func TestCountRules(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	createRule(t, s, 1, "a")
	b := createRule(t, s, 1, "b")
	createRule(t, s, 2, "c")

	tests := []struct {
		name   string
		chatID int64
		want   int
	}{
		{name: "chat with rules", chatID: 1, want: 2},
		{name: "other chat", chatID: 2, want: 1},
		{name: "empty chat", chatID: 3, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CountRules(ctx, tt.chatID)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("count mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := s.DeleteRule(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.CountRules(ctx, 1)
	if err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if diff := cmp.Diff(1, got); diff != "" {
		t.Errorf("count after delete (-want +got):\n%s", diff)
	}
}

func TestBoardCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	b := model.BoardSubscription{
		ChatID:          100,
		Board:           boardG,
		URL:             "https://boards.example.com/g/index.rss",
		IntervalMinutes: 15,
		IsActive:        true,
	}
	if err := s.CreateBoard(ctx, &b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	got, err := s.GetBoard(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(b, *got, ignoreBoardTS); diff != "" {
		t.Errorf("GetBoard mismatch (-want +got):\n%s", diff)
	}

	dup := b
	dup.ID = 0
	if err := s.CreateBoard(ctx, &dup); err == nil {
		t.Error("expected error subscribing to the same board twice")
	}

	now := time.Now().UTC().Truncate(time.Second)
	b.IntervalMinutes = 60
	b.IsActive = false
	b.LastCheckAt = &now
	if err := s.UpdateBoard(ctx, &b); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetBoard(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(b, *got, ignoreBoardTS); diff != "" {
		t.Errorf("UpdateBoard mismatch (-want +got):\n%s", diff)
	}
	if got.LastCheckAt == nil || !got.LastCheckAt.Equal(now) {
		t.Errorf("LastCheckAt = %v, want %v", got.LastCheckAt, now)
	}

	list, err := s.ListBoards(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(list)); diff != "" {
		t.Errorf("board count (-want +got):\n%s", diff)
	}

	if _, err := s.GetBoard(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetBoardLastCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	b := model.BoardSubscription{
		ChatID:          100,
		Board:           boardG,
		URL:             "https://boards.example.com/g/index.rss",
		IntervalMinutes: 15,
		IsActive:        true,
	}
	if err := s.CreateBoard(ctx, &b); err != nil {
		t.Fatalf("create: %v", err)
	}

	paused := b
	paused.IsActive = false
	paused.IntervalMinutes = 60
	if err := s.UpdateBoard(ctx, &paused); err != nil {
		t.Fatalf("update: %v", err)
	}

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := s.SetBoardLastCheck(ctx, b.ID, at); err != nil {
		t.Fatalf("set last check: %v", err)
	}

	got, err := s.GetBoard(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(paused, *got, ignoreBoardTS); diff != "" {
		t.Errorf("settings changed by SetBoardLastCheck (-want +got):\n%s", diff)
	}
	if got.LastCheckAt == nil || !got.LastCheckAt.Equal(at) {
		t.Errorf("LastCheckAt = %v, want %v", got.LastCheckAt, at)
	}
}

func TestDeleteBoardCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	b := model.BoardSubscription{ChatID: 1, Board: boardG, URL: "https://x/g.rss", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateBoard(ctx, &b); err != nil {
		t.Fatalf("create board: %v", err)
	}
	for _, w := range []model.WatchedThread{
		{ChatID: 1, Board: boardG, ThreadNo: 10},
		{ChatID: 1, Board: boardV, ThreadNo: 20},
	} {
		if _, err := s.WatchThread(ctx, &w); err != nil {
			t.Fatalf("watch: %v", err)
		}
	}

	if err := s.DeleteBoard(ctx, b.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, err := s.GetBoard(ctx, b.ID); err == nil {
		t.Fatal("expected error getting deleted board")
	}

	watched, err := s.ListWatched(ctx, 1)
	if err != nil {
		t.Fatalf("list watched: %v", err)
	}
	if diff := cmp.Diff(1, len(watched)); diff != "" {
		t.Fatalf("watched count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(boardV, watched[0].Board); diff != "" {
		t.Errorf("remaining watched board (-want +got):\n%s", diff)
	}
}

func TestWatchedThreads(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	w := model.WatchedThread{
		ChatID: 7, Board: boardG, ThreadNo: 123456, Subject: "Desktop thread",
		Link: "https://boards.example.com/g/thread/123456", RuleID: 3,
	}

	tests := []struct {
		name      string
		wantAdded bool
	}{
		{name: "first watch adds", wantAdded: true},
		{name: "second watch is ignored", wantAdded: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := w
			added, err := s.WatchThread(ctx, &cp)
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
			if diff := cmp.Diff(tt.wantAdded, added); diff != "" {
				t.Errorf("added (-want +got):\n%s", diff)
			}
			if added {
				w.ID = cp.ID
			}
		})
	}

	watched, err := s.IsWatched(ctx, 7, boardG, 123456)
	if err != nil {
		t.Fatalf("is watched: %v", err)
	}
	if !watched {
		t.Error("expected thread to be watched")
	}
	watched, err = s.IsWatched(ctx, 8, boardG, 123456)
	if err != nil {
		t.Fatalf("is watched: %v", err)
	}
	if watched {
		t.Error("watch list must be per chat")
	}

	got, err := s.GetWatched(ctx, w.ID)
	if err != nil {
		t.Fatalf("get watched: %v", err)
	}
	if diff := cmp.Diff(w, *got, ignoreWatchedTS); diff != "" {
		t.Errorf("GetWatched mismatch (-want +got):\n%s", diff)
	}

	if err := s.UnwatchThread(ctx, w.ID); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	list, err := s.ListWatched(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty watch list, got %d", len(list))
	}
}

func TestListDueBoards(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	past := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	recent := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second)

	boards := []struct {
		name    string
		board   model.BoardSubscription
		wantDue bool
	}{
		{
			name:    "never checked",
			board:   model.BoardSubscription{ChatID: 1, Board: boardG, URL: "https://a", IntervalMinutes: 15, IsActive: true},
			wantDue: true,
		},
		{
			name:    "checked long ago",
			board:   model.BoardSubscription{ChatID: 1, Board: boardV, URL: "https://b", IntervalMinutes: 15, IsActive: true, LastCheckAt: &past},
			wantDue: true,
		},
		{
			name: "checked recently",
			board: model.BoardSubscription{ChatID: 1, Board: model.BoardDescriptor{Site: "4chan", Code: "a"},
				URL: "https://c", IntervalMinutes: 15, IsActive: true, LastCheckAt: &recent},
			wantDue: false,
		},
		{
			name: "inactive",
			board: model.BoardSubscription{ChatID: 1, Board: model.BoardDescriptor{Site: "4chan", Code: "tv"},
				URL: "https://d", IntervalMinutes: 15, IsActive: false},
			wantDue: false,
		},
	}

	for i := range boards {
		if err := s.CreateBoard(ctx, &boards[i].board); err != nil {
			t.Fatalf("create: %v", err)
		}
		if boards[i].board.LastCheckAt != nil {
			if err := s.UpdateBoard(ctx, &boards[i].board); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
	}

	got, err := s.ListDueBoards(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	var wantIDs []int64
	for _, b := range boards {
		if b.wantDue {
			wantIDs = append(wantIDs, b.board.ID)
		}
	}
	var gotIDs []int64
	for _, b := range got {
		gotIDs = append(gotIDs, b.ID)
	}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("due board IDs mismatch (-want +got):\n%s", diff)
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
