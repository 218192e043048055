// Package telegram implements the Telegram Bot gateway for Rasid using
// long polling or webhook mode.
//
// Security:
//   - Chat allowlist: only explicitly listed operator chats can interact
//     (default-deny)
//   - Bot token from TELEGRAM_BOT_TOKEN env var, never logged
//   - Webhook path derived from bot token hash
//   - Per-chat rate limiting
//   - Destructive operations gated behind inline-keyboard confirmation
package telegram

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rasidhq/rasid/internal/confirm"
	"github.com/rasidhq/rasid/internal/interp"
	"github.com/rasidhq/rasid/internal/ops"
	"github.com/rasidhq/rasid/internal/ratelimit"
)

const (
	defaultPollTimeout = 30
	maxUpdateSize      = 256 << 10 // 256 KB
	maxMessageLen      = 4000      // margin under Telegram's 4096 limit
)

// Interpreter plans operations from an operator message. Satisfied by
// interp.Interpreter; an interface here so tests can stub the model.
type Interpreter interface {
	Interpret(ctx context.Context, message string) (*interp.Plan, error)
}

// Config configures the Telegram gateway.
type Config struct {
	BotToken     string  // From TELEGRAM_BOT_TOKEN env var.
	WebhookURL   string  // If set, webhook mode; otherwise long polling.
	ListenAddr   string  // For webhook mode.
	AllowedChats []int64 // Operator chat IDs. Empty = deny all.
	PollTimeout  int     // Long poll timeout in seconds. 0 = 30s.
}

// Gateway connects operator chats to the interpreter, the confirmation
// gateway, and the executor.
type Gateway struct {
	config      Config
	interpreter Interpreter
	confirmGW   *confirm.Gateway
	resolver    *confirm.Resolver
	executor    *ops.Executor
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	httpClient  *http.Client
	apiBase     string
	server      *http.Server // nil in polling mode
	cancel      context.CancelFunc
	allowed     map[int64]bool
}

// New creates a Telegram gateway.
func New(cfg Config, ip Interpreter, cg *confirm.Gateway, ex *ops.Executor, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Gateway{
		config:      cfg,
		interpreter: ip,
		confirmGW:   cg,
		resolver:    cg.Resolver(),
		executor:    ex,
		limiter:     rl,
		logger:      logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.pollTimeout()+10) * time.Second,
		},
		apiBase: "https://api.telegram.org",
		allowed: allowed,
	}
}

// Start launches the gateway in webhook or long-polling mode and blocks.
func (g *Gateway) Start(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)
	if g.config.WebhookURL != "" {
		return g.startWebhook(ctx)
	}
	return g.startPolling(ctx)
}

// Stop gracefully shuts down the gateway.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.server != nil {
		g.logger.Info("telegram gateway stopping webhook server")
		return g.server.Shutdown(ctx)
	}
	g.logger.Info("telegram gateway stopping poller")
	return nil
}

// Send delivers a plain text message to a chat. This is the transport
// behind the send_message operation.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := g.callAPI(ctx, "sendMessage", map[string]any{
			"chat_id": chatID,
			"text":    chunk,
		}); err != nil {
			return err
		}
	}
	return nil
}

// --- Long Polling ---

func (g *Gateway) startPolling(ctx context.Context) error {
	g.logger.Info("telegram gateway starting long polling",
		slog.Int("timeout", g.config.pollTimeout()),
	)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := g.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			g.logger.Error("telegram getUpdates failed", slog.String("error", err.Error()))
			time.Sleep(2 * time.Second)
			continue
		}

		for _, u := range updates {
			g.processUpdate(ctx, &u)
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
	}
}

func (g *Gateway) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body, err := json.Marshal(map[string]any{
		"offset":  offset,
		"timeout": g.config.pollTimeout(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL("getUpdates"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpdateSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}
	return result.Result, nil
}

// --- Webhook ---

func (g *Gateway) startWebhook(ctx context.Context) error {
	// The webhook path is a hash of the bot token so outsiders cannot
	// guess where to POST forged updates.
	secretPath := "/" + g.webhookSecret()

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+secretPath, g.handleWebhook)

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("telegram gateway starting webhook",
		slog.String("addr", g.config.ListenAddr),
	)

	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&update); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	g.processUpdate(r.Context(), &update)
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) webhookSecret() string {
	h := sha256.Sum256([]byte(g.config.BotToken))
	return hex.EncodeToString(h[:16])
}

// --- Update Processing ---

func (g *Gateway) processUpdate(ctx context.Context, update *Update) {
	if update.CallbackQuery != nil {
		g.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		g.handleMessage(ctx, update.Message)
	}
}

// chatContext is the identity a pending action is bound to. Confirmations
// only count from the chat that saw the prompt.
func chatContext(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}

func (g *Gateway) handleMessage(ctx context.Context, msg *Message) {
	if msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID

	if !g.allowed[chatID] {
		g.logger.Warn("telegram chat not in allowlist", slog.Int64("chat_id", chatID))
		g.sendText(ctx, chatID, "این چت مجاز نیست. (This chat is not authorized.)")
		return
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(chatID); err != nil {
			g.sendText(ctx, chatID, "لطفاً کمی صبر کنید. (Rate limit exceeded, please wait.)")
			return
		}
	}

	if strings.HasPrefix(msg.Text, "/start") {
		g.sendText(ctx, chatID,
			"سلام! من رصد هستم، دستیار پنل نمایندگی شما.\n"+
				"Hi! I am Rasid, your reseller panel assistant.\n"+
				"فاکتور، پرداخت و پیام نماینده‌ها را به زبان خودتان مدیریت کنید.")
		return
	}

	g.logger.Info("telegram message", slog.Int64("chat_id", chatID))

	plan, err := g.interpreter.Interpret(ctx, msg.Text)
	if err != nil {
		g.logger.Error("interpreting message failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		g.sendText(ctx, chatID, "متوجه پیام نشدم، دوباره تلاش کنید. (Could not process your message, please retry.)")
		return
	}

	proposal, err := g.confirmGW.Propose(chatContext(chatID), plan.Proposed())
	if err != nil {
		g.logger.Error("proposing operations failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		g.sendText(ctx, chatID, "درخواست‌های در انتظار زیاد است، بعداً تلاش کنید. (Too many pending requests, try again later.)")
		return
	}

	switch {
	case proposal == nil:
		// Nothing to execute; answer conversationally.
		if plan.Reply != "" {
			g.sendText(ctx, chatID, plan.Reply)
		}
	case proposal.ExecuteNow:
		g.executeAndReport(ctx, chatID, plan.Proposed())
	default:
		g.sendPrompt(ctx, chatID, proposal.Prompt)
	}
}

func (g *Gateway) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if cb.Data == "" {
		return
	}

	chatID := int64(0)
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}

	if !g.allowed[chatID] {
		g.answerCallback(ctx, cb.ID, "Not authorized.")
		return
	}

	res, err := g.resolver.Resolve(cb.Data, chatContext(chatID))
	if err != nil {
		g.answerCallback(ctx, cb.ID, "Invalid action.")
		return
	}

	switch res.Outcome {
	case confirm.OutcomeApproved:
		g.answerCallback(ctx, cb.ID, "✅")
		g.executeAndReport(ctx, chatID, res.Operations)
	case confirm.OutcomeCancelled:
		g.answerCallback(ctx, cb.ID, "❌")
		g.sendText(ctx, chatID, "لغو شد، هیچ عملیاتی اجرا نشد. (Cancelled, nothing was executed.)")
	case confirm.OutcomeExpired:
		g.answerCallback(ctx, cb.ID, "منقضی شده (expired)")
		g.sendText(ctx, chatID, "این درخواست منقضی یا قبلاً پاسخ داده شده است. (This request expired or was already handled.)")
	case confirm.OutcomeRejected:
		g.answerCallback(ctx, cb.ID, "رد شد (rejected)")
		g.sendText(ctx, chatID, "تأیید از چت دیگری پذیرفته نمی‌شود. (Confirmations from another chat are not accepted.)")
	}
}

func (g *Gateway) executeAndReport(ctx context.Context, chatID int64, batch []confirm.ProposedOperation) {
	results, err := g.executor.ExecuteAll(ctx, batch)
	if err != nil {
		g.logger.Error("batch execution failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		g.sendText(ctx, chatID, fmt.Sprintf("خطا در اجرا (execution error): %s", err))
		return
	}
	g.sendText(ctx, chatID, ops.FormatResults(results))
}

// --- Telegram API ---

func (g *Gateway) sendText(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := g.Send(ctx, chatID, text); err != nil {
		g.logger.Error("sending message failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Gateway) sendPrompt(ctx context.Context, chatID int64, prompt confirm.OutboundPrompt) {
	err := g.callAPI(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    prompt.Text,
		"reply_markup": InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{
					{Text: prompt.Confirm.Label, CallbackData: prompt.Confirm.Callback},
					{Text: prompt.Cancel.Label, CallbackData: prompt.Cancel.Callback},
				},
			},
		},
	})
	if err != nil {
		g.logger.Error("sending confirmation prompt failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Gateway) answerCallback(ctx context.Context, callbackID, text string) {
	if err := g.callAPI(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	}); err != nil {
		g.logger.Error("answering callback failed", slog.String("error", err.Error()))
	}
}

func (g *Gateway) callAPI(ctx context.Context, method string, params map[string]any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL(method), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, respBody)
	}
	return nil
}

func (g *Gateway) apiURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", g.apiBase, g.config.BotToken, method)
}

// --- Types ---

// Update represents a Telegram Bot API update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// CallbackQuery represents an inline keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// User represents a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// InlineKeyboardMarkup represents inline keyboard buttons.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a single inline keyboard button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// --- Helpers ---

func (c Config) pollTimeout() int {
	if c.PollTimeout > 0 {
		return c.PollTimeout
	}
	return defaultPollTimeout
}

// splitMessage splits plain text into chunks under Telegram's length
// limit, preferring paragraph, then line, then word boundaries.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		candidate := remaining[:maxLen]
		splitAt := -1

		if idx := strings.LastIndex(candidate, "\n\n"); idx > 0 {
			splitAt = idx + 1
		}
		if splitAt < 0 {
			if idx := strings.LastIndex(candidate, "\n"); idx > 0 {
				splitAt = idx + 1
			}
		}
		if splitAt < 0 {
			if idx := strings.LastIndex(candidate, " "); idx > 0 {
				splitAt = idx + 1
			}
		}
		if splitAt < 0 {
			// Hard cut; back off to a rune boundary.
			splitAt = maxLen
			for splitAt > 0 && remaining[splitAt]&0xC0 == 0x80 {
				splitAt--
			}
			if splitAt == 0 {
				splitAt = maxLen
			}
		}

		chunks = append(chunks, remaining[:splitAt])
		remaining = remaining[splitAt:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
