package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rasidhq/rasid/internal/confirm"
	"github.com/rasidhq/rasid/internal/interp"
	"github.com/rasidhq/rasid/internal/ops"
)

type apiCall struct {
	Method string
	Params map[string]any
}

// fakeAPI records Bot API calls the gateway makes.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var params map[string]any
	_ = json.Unmarshal(body, &params)

	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
}

func (f *fakeAPI) sent(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type stubInterpreter struct {
	plan *interp.Plan
	err  error
}

func (s *stubInterpreter) Interpret(context.Context, string) (*interp.Plan, error) {
	return s.plan, s.err
}

type recordingOp struct {
	name        string
	destructive bool
	mu          sync.Mutex
	executed    int
}

func (o *recordingOp) Name() string                { return o.name }
func (o *recordingOp) Description() string         { return "records executions" }
func (o *recordingOp) Destructive() bool           { return o.destructive }
func (o *recordingOp) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (o *recordingOp) Execute(context.Context, map[string]any) (*ops.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executed++
	return &ops.Result{Output: o.name + " ran"}, nil
}

func (o *recordingOp) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executed
}

func newTestGateway(t *testing.T, plan *interp.Plan, destructive *recordingOp, safe *recordingOp) (*Gateway, *fakeAPI) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := ops.NewRegistry()
	registry.Register(destructive)
	registry.Register(safe)

	store := confirm.NewStore(confirm.DefaultTTL, logger)
	cg := confirm.NewGateway(registry.Classifier(), confirm.NewRenderer(), store, logger)
	executor := ops.NewExecutor(registry, logger)

	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	g := New(Config{BotToken: "test-token", AllowedChats: []int64{42}},
		&stubInterpreter{plan: plan}, cg, executor, nil, logger)
	g.apiBase = srv.URL
	return g, api
}

func operatorMessage(chatID int64, text string) *Message {
	return &Message{Chat: Chat{ID: chatID}, Text: text, From: &User{ID: 7}}
}

func TestDestructivePlanPromptsThenExecutesOnConfirm(t *testing.T) {
	zap := &recordingOp{name: "cancel_invoice", destructive: true}
	peek := &recordingOp{name: "list_resellers"}
	plan := &interp.Plan{Operations: []interp.PlannedOperation{
		{Name: "cancel_invoice", Args: map[string]any{"invoice": float64(12)}},
	}}
	g, api := newTestGateway(t, plan, zap, peek)
	ctx := context.Background()

	g.handleMessage(ctx, operatorMessage(42, "فاکتور ۱۲ را باطل کن"))

	if zap.count() != 0 {
		t.Fatal("destructive operation ran without confirmation")
	}
	prompts := api.sent("sendMessage")
	if len(prompts) != 1 {
		t.Fatalf("expected one prompt message, got %d", len(prompts))
	}
	markup, ok := prompts[0].Params["reply_markup"].(map[string]any)
	if !ok {
		t.Fatal("prompt has no inline keyboard")
	}
	rows := markup["inline_keyboard"].([]any)
	buttons := rows[0].([]any)
	confirmBtn := buttons[0].(map[string]any)
	data, _ := confirmBtn["callback_data"].(string)
	if !strings.HasPrefix(data, "confirm_action:") {
		t.Fatalf("confirm callback = %q", data)
	}

	g.handleCallback(ctx, &CallbackQuery{
		ID:      "cb1",
		Data:    data,
		Message: &Message{Chat: Chat{ID: 42}},
	})

	if zap.count() != 1 {
		t.Fatalf("operation executed %d times after confirm, want 1", zap.count())
	}

	// Replaying the same callback must not execute again.
	g.handleCallback(ctx, &CallbackQuery{
		ID:      "cb2",
		Data:    data,
		Message: &Message{Chat: Chat{ID: 42}},
	})
	if zap.count() != 1 {
		t.Fatalf("replayed callback re-executed, count = %d", zap.count())
	}
}

func TestCancelNeverExecutes(t *testing.T) {
	zap := &recordingOp{name: "cancel_invoice", destructive: true}
	peek := &recordingOp{name: "list_resellers"}
	plan := &interp.Plan{Operations: []interp.PlannedOperation{{Name: "cancel_invoice", Args: map[string]any{}}}}
	g, api := newTestGateway(t, plan, zap, peek)
	ctx := context.Background()

	g.handleMessage(ctx, operatorMessage(42, "cancel invoice 5"))
	prompts := api.sent("sendMessage")
	markup := prompts[0].Params["reply_markup"].(map[string]any)
	buttons := markup["inline_keyboard"].([]any)[0].([]any)
	cancelData := buttons[1].(map[string]any)["callback_data"].(string)
	if !strings.HasPrefix(cancelData, "cancel_action:") {
		t.Fatalf("cancel callback = %q", cancelData)
	}

	g.handleCallback(ctx, &CallbackQuery{ID: "cb", Data: cancelData, Message: &Message{Chat: Chat{ID: 42}}})
	if zap.count() != 0 {
		t.Fatal("cancelled action must not execute")
	}
}

func TestSafePlanExecutesImmediately(t *testing.T) {
	zap := &recordingOp{name: "cancel_invoice", destructive: true}
	peek := &recordingOp{name: "list_resellers"}
	plan := &interp.Plan{Operations: []interp.PlannedOperation{{Name: "list_resellers", Args: map[string]any{}}}}
	g, api := newTestGateway(t, plan, zap, peek)

	g.handleMessage(context.Background(), operatorMessage(42, "who are my resellers"))

	if peek.count() != 1 {
		t.Fatalf("safe operation executed %d times, want 1", peek.count())
	}
	msgs := api.sent("sendMessage")
	if len(msgs) != 1 || msgs[0].Params["reply_markup"] != nil {
		t.Fatalf("expected one plain result message, got %+v", msgs)
	}
}

func TestUnlistedChatIsDenied(t *testing.T) {
	zap := &recordingOp{name: "cancel_invoice", destructive: true}
	peek := &recordingOp{name: "list_resellers"}
	plan := &interp.Plan{Operations: []interp.PlannedOperation{{Name: "list_resellers", Args: map[string]any{}}}}
	g, _ := newTestGateway(t, plan, zap, peek)

	g.handleMessage(context.Background(), operatorMessage(999, "list resellers"))
	if peek.count() != 0 {
		t.Fatal("unlisted chat must not trigger execution")
	}
}

func TestCrossChatCallbackRejected(t *testing.T) {
	zap := &recordingOp{name: "cancel_invoice", destructive: true}
	peek := &recordingOp{name: "list_resellers"}
	plan := &interp.Plan{Operations: []interp.PlannedOperation{{Name: "cancel_invoice", Args: map[string]any{}}}}
	g, api := newTestGateway(t, plan, zap, peek)
	g.allowed[43] = true
	ctx := context.Background()

	g.handleMessage(ctx, operatorMessage(42, "cancel invoice 5"))
	prompts := api.sent("sendMessage")
	markup := prompts[0].Params["reply_markup"].(map[string]any)
	buttons := markup["inline_keyboard"].([]any)[0].([]any)
	data := buttons[0].(map[string]any)["callback_data"].(string)

	// Confirmation arrives from a different chat.
	g.handleCallback(ctx, &CallbackQuery{ID: "cb", Data: data, Message: &Message{Chat: Chat{ID: 43}}})
	if zap.count() != 0 {
		t.Fatal("cross-chat confirmation must not execute")
	}

	// The consume also invalidated the action for the origin chat.
	g.handleCallback(ctx, &CallbackQuery{ID: "cb2", Data: data, Message: &Message{Chat: Chat{ID: 42}}})
	if zap.count() != 0 {
		t.Fatal("action must stay dead after a cross-chat attempt")
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text should be a single chunk: %v", got)
	}

	long := strings.Repeat("پاراگراف یک\n\n", 50)
	chunks := splitMessage(long, 200)
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d is %d bytes, over the limit", i, len(c))
		}
	}
	if strings.Join(chunks, "") != long {
		t.Error("chunks must reassemble to the original text")
	}
}
