package dialogue_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/dialogue"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/ratelimit"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

// fakeProvider records requests and answers from a script.
type fakeProvider struct {
	mu    sync.Mutex
	calls []llm.CompletionRequest
	reply func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.reply == nil {
		return &llm.CompletionResponse{Content: "ok"}, nil
	}
	return f.reply(ctx, req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	engine   *dialogue.Engine
	store    *store.Store
	provider *fakeProvider
	clock    *clock
}

func newFixture(t *testing.T, cfg dialogue.Config) *fixture {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "hoshi-dialogue-*.db")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	f.Close()
	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := &fakeProvider{}
	e := dialogue.New(cfg, s, ratelimit.NewWithClock(clk.Now), p)
	return &fixture{engine: e, store: s, provider: p, clock: clk}
}

func (fx *fixture) history(t *testing.T, chatID int64) []store.Turn {
	t.Helper()
	turns, err := fx.store.History(context.Background(), chatID, 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	return turns
}

func TestRespond_TextRoundTrip(t *testing.T) {
	fx := newFixture(t, dialogue.Config{SystemPrompt: "be brief"})
	fx.provider.reply = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "hello back"}, nil
	}

	got, err := fx.engine.Respond(context.Background(), dialogue.Request{ChatID: 1, UserID: 1, Text: "hello"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "hello back" {
		t.Errorf("reply: got %q", got)
	}

	req := fx.provider.calls[0]
	if req.System != "be brief" {
		t.Errorf("System: got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}

	turns := fx.history(t, 1)
	if len(turns) != 2 || turns[0].Role != store.RoleUser || turns[1].Role != store.RoleAssistant {
		t.Errorf("unexpected history %+v", turns)
	}
}

func TestRespond_UnsupportedInput(t *testing.T) {
	fx := newFixture(t, dialogue.Config{})

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{ChatID: 1, UserID: 1, Text: "   "})
	if !errors.Is(err, apperr.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input, got %v", err)
	}
	if len(fx.history(t, 1)) != 0 || fx.provider.callCount() != 0 {
		t.Error("unsupported input must not touch store or backend")
	}
}

func TestRespond_OversizeImageRejectedFirst(t *testing.T) {
	fx := newFixture(t, dialogue.Config{})
	big := make([]byte, 6*1024*1024)

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{
		ChatID: 1, UserID: 1, Text: "look",
		Image: &dialogue.Image{MIME: "image/jpeg", Data: big},
	})
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if len(fx.history(t, 1)) != 0 {
		t.Error("history must be unchanged after oversize image")
	}
	if fx.provider.callCount() != 0 {
		t.Error("backend must not be called for oversize image")
	}

	// The rejection did not consume the rate limit.
	if _, err := fx.engine.Respond(context.Background(), dialogue.Request{ChatID: 1, UserID: 1, Text: "hi"}); err != nil {
		t.Errorf("follow-up message: %v", err)
	}
}

func TestRespond_DeclaredSizeCounts(t *testing.T) {
	fx := newFixture(t, dialogue.Config{MaxImageBytes: 1024})

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{
		ChatID: 1, UserID: 1,
		Image: &dialogue.Image{Data: []byte{1}, DeclaredSize: 4096},
	})
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
}

func TestRespond_SkippedDownloadStillTooLarge(t *testing.T) {
	fx := newFixture(t, dialogue.Config{})

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{
		ChatID: 1, UserID: 1,
		Image: &dialogue.Image{MIME: "image/jpeg", DeclaredSize: 6 * 1024 * 1024},
	})
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
}

func TestRespond_RateLimited(t *testing.T) {
	fx := newFixture(t, dialogue.Config{ChatInterval: 2 * time.Second})
	ctx := context.Background()

	if _, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "one"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	fx.clock.now = fx.clock.now.Add(time.Second)
	if _, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "two"}); !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if n := len(fx.history(t, 1)); n != 2 {
		t.Errorf("rate-limited message must not be stored, history has %d turns", n)
	}

	fx.clock.now = fx.clock.now.Add(1500 * time.Millisecond)
	if _, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "three"}); err != nil {
		t.Errorf("after interval: %v", err)
	}
}

func TestRespond_ImageMultipart(t *testing.T) {
	fx := newFixture(t, dialogue.Config{})
	data := []byte{0xff, 0xd8, 0xff}

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{
		ChatID: 1, UserID: 1, Text: "what is this",
		Image: &dialogue.Image{MIME: "image/jpeg", Data: data, DeclaredSize: 3},
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs := fx.provider.calls[0].Messages
	last := msgs[len(msgs)-1]
	if last.Image == nil || string(last.Image.Data) != string(data) {
		t.Fatalf("last message should carry the image, got %+v", last)
	}
	if last.Content != "what is this" {
		t.Errorf("multipart text: got %q", last.Content)
	}

	turns := fx.history(t, 1)
	if turns[0].Content != "[image] what is this" {
		t.Errorf("stored content: got %q", turns[0].Content)
	}
}

func TestRespond_BackendFailureLeavesOrphanTurn(t *testing.T) {
	fx := newFixture(t, dialogue.Config{Secrets: []string{"hunter2hunter2"}})
	fx.provider.reply = func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("upstream <500> key=hunter2hunter2 " + strings.Repeat("x", 400))
	}

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{ChatID: 1, UserID: 1, Text: "hi"})
	if !errors.Is(err, apperr.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}

	msg := apperr.UserMessage(err)
	if strings.Contains(msg, "hunter2hunter2") {
		t.Error("secret leaked into user message")
	}
	if strings.Contains(msg, "<500>") || !strings.Contains(msg, "&lt;500&gt;") {
		t.Errorf("snippet should be HTML-escaped, got %q", msg)
	}
	if len([]rune(msg)) > 400 {
		t.Errorf("user message not bounded: %d runes", len([]rune(msg)))
	}

	turns := fx.history(t, 1)
	if len(turns) != 1 || turns[0].Role != store.RoleUser {
		t.Fatalf("expected one orphan user turn, got %+v", turns)
	}
}

func TestRespond_TimeoutThenOrderedExchange(t *testing.T) {
	fx := newFixture(t, dialogue.Config{ResponseTimeout: 20 * time.Millisecond, ChatInterval: time.Second})
	ctx := context.Background()

	fx.provider.reply = func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "slow"})
	if !errors.Is(err, apperr.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(apperr.UserMessage(err), "timed out") {
		t.Errorf("expected timeout in message, got %q", apperr.UserMessage(err))
	}

	fx.provider.reply = nil
	fx.clock.now = fx.clock.now.Add(2 * time.Second)
	if _, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "fast"}); err != nil {
		t.Fatalf("second exchange: %v", err)
	}

	turns := fx.history(t, 1)
	want := []string{"slow", "fast", "ok"}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %+v", len(want), turns)
	}
	for i, w := range want {
		if turns[i].Content != w {
			t.Errorf("turn %d: got %q, want %q", i, turns[i].Content, w)
		}
	}
}

func TestRespond_HistoryBoundPassedToBackend(t *testing.T) {
	fx := newFixture(t, dialogue.Config{HistoryTurns: 4})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = fx.store.AppendTurn(ctx, 1, store.RoleUser, "old")
	}
	if _, err := fx.engine.Respond(ctx, dialogue.Request{ChatID: 1, UserID: 1, Text: "new"}); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs := fx.provider.calls[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Content != "new" {
		t.Errorf("newest message should be last, got %q", msgs[3].Content)
	}
}

func TestRespond_UncaptionedImageGetsDefaultPrompt(t *testing.T) {
	fx := newFixture(t, dialogue.Config{})

	_, err := fx.engine.Respond(context.Background(), dialogue.Request{
		ChatID: 1, UserID: 1,
		Image: &dialogue.Image{MIME: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs := fx.provider.calls[0].Messages
	last := msgs[len(msgs)-1]
	if last.Image == nil || last.Content != llm.DefaultImagePrompt {
		t.Errorf("expected default prompt with image, got %+v", last)
	}
	if turns := fx.history(t, 1); turns[0].Content != "[image]" {
		t.Errorf("stored content: got %q", turns[0].Content)
	}
}
