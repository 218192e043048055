// Package httpapi exposes the assistant over HTTP for panel frontends
// and scripting.
//
// Security:
//   - API key authentication on every request (constant-time comparison)
//   - Per-operator rate limiting via token bucket
//   - Confirmation required for destructive operations, same as chat
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/rasidhq/rasid/internal/billing"
	"github.com/rasidhq/rasid/internal/confirm"
	"github.com/rasidhq/rasid/internal/interp"
	"github.com/rasidhq/rasid/internal/observability"
	"github.com/rasidhq/rasid/internal/ops"
	"github.com/rasidhq/rasid/internal/ratelimit"
	"github.com/rasidhq/rasid/internal/reminder"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr string // e.g., ":8080"
	EnableDocs bool
	APIKeys    map[string]string // API key to operator name mapping. Keys from env.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Interpreter turns a free-form operator message into an operation plan.
type Interpreter interface {
	Interpret(ctx context.Context, message string) (*interp.Plan, error)
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config      Config
	interpreter Interpreter
	confirmGW   *confirm.Gateway
	resolver    *confirm.Resolver
	executor    *ops.Executor
	billing     *billing.Service
	templates   billing.ReminderTemplateStore // nil = reminder endpoints disabled.
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	server      *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, ip Interpreter, cg *confirm.Gateway, ex *ops.Executor, svc *billing.Service, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:      cfg,
		interpreter: ip,
		confirmGW:   cg,
		resolver:    cg.Resolver(),
		executor:    ex,
		billing:     svc,
		limiter:     rl,
		logger:      logger,
		okapi:       okapi.New(),
	}
}

// WithReminderTemplates attaches reminder template management to the gateway.
func (g *Gateway) WithReminderTemplates(store billing.ReminderTemplateStore) *Gateway {
	g.templates = store
	return g
}

// WithOpenAPIDocs enables interactive API documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Rasid",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	middlewares := []okapi.Middleware{}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append(middlewares, observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}
	middlewares = append(middlewares, g.authenticate)

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", middlewares...)

	// Command endpoints.
	g.group.Post("/command", g.handleCommand,
		okapi.DocSummary("Send a natural-language command to the assistant"),
		okapi.DocTags("Command"),
		okapi.DocRequestBody(CommandRequest{}),
		okapi.DocResponse(CommandResponse{}),
		okapi.DocResponse(http.StatusAccepted, ConfirmationPendingResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/confirm", g.handleConfirm,
		okapi.DocSummary("Confirm or cancel a pending destructive action"),
		okapi.DocTags("Command"),
		okapi.DocRequestBody(ConfirmRequest{}),
		okapi.DocResponse(ConfirmResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusGone, ErrorBody{}),
	)

	// Billing endpoints.
	g.group.Post("/resellers", g.handleResellerCreate,
		okapi.DocSummary("Create a reseller"),
		okapi.DocTags("Billing"),
		okapi.DocRequestBody(ResellerRequest{}),
		okapi.DocResponse(http.StatusCreated, ResellerResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/resellers", g.handleResellerList,
		okapi.DocSummary("List all resellers"),
		okapi.DocTags("Billing"),
		okapi.DocResponse([]ResellerResponse{}),
	)
	g.group.Get("/resellers/{name}/status", g.handleResellerStatus,
		okapi.DocSummary("Get a reseller's account summary"),
		okapi.DocTags("Billing"),
		okapi.DocPathParam("name", "string", "Reseller name"),
		okapi.DocResponse(StatusResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/resellers/{name}/invoices", g.handleResellerInvoices,
		okapi.DocSummary("List a reseller's invoices"),
		okapi.DocTags("Billing"),
		okapi.DocPathParam("name", "string", "Reseller name"),
		okapi.DocResponse([]InvoiceResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/invoices", g.handleInvoiceCreate,
		okapi.DocSummary("Issue an invoice"),
		okapi.DocTags("Billing"),
		okapi.DocRequestBody(InvoiceRequest{}),
		okapi.DocResponse(http.StatusCreated, InvoiceResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/invoices/overdue", g.handleOverdueInvoices,
		okapi.DocSummary("List all overdue invoices"),
		okapi.DocTags("Billing"),
		okapi.DocResponse([]InvoiceResponse{}),
	)
	g.group.Post("/payments", g.handlePaymentCreate,
		okapi.DocSummary("Register a payment"),
		okapi.DocTags("Billing"),
		okapi.DocRequestBody(PaymentRequest{}),
		okapi.DocResponse(http.StatusCreated, PaymentResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)

	// Reminder template endpoints (only if a template store is configured).
	if g.templates != nil {
		g.group.Post("/reminders", g.handleReminderCreate,
			okapi.DocSummary("Create a scheduled reminder template"),
			okapi.DocTags("Reminders"),
			okapi.DocRequestBody(ReminderTemplateRequest{}),
			okapi.DocResponse(http.StatusCreated, ReminderTemplateResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
		g.group.Get("/reminders", g.handleReminderList,
			okapi.DocSummary("List enabled reminder templates"),
			okapi.DocTags("Reminders"),
			okapi.DocResponse([]ReminderTemplateResponse{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// chatContext is the isolation scope for a pending action created over
// HTTP. Each operator gets their own scope, so a confirmation token
// issued to one API key cannot be redeemed with another.
func chatContext(operator string) string {
	return "api:" + operator
}

// --- Command handlers ---

// CommandRequest is the JSON body for POST /v1/command.
type CommandRequest struct {
	Message string `json:"message"`
}

// CommandResponse is returned when the command completed without needing
// confirmation: either a conversational reply or executed read-only results.
type CommandResponse struct {
	Reply   string   `json:"reply,omitempty"`
	Results []string `json:"results,omitempty"`
}

// ConfirmationPendingResponse is returned with HTTP 202 when the planned
// operations are destructive and must be confirmed first.
type ConfirmationPendingResponse struct {
	PendingID string `json:"pending_id"`
	Prompt    string `json:"prompt"`
	Confirm   string `json:"confirm"` // Token for POST /v1/confirm.
	Cancel    string `json:"cancel"`
}

func (g *Gateway) handleCommand(c *okapi.Context) error {
	operator := c.GetString("operator")

	if g.limiter != nil {
		if err := g.limiter.Allow(operatorBucket(operator)); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("message is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.AbortBadRequest("message is required")
	}

	g.logger.Info("http command", slog.String("operator", operator))

	plan, err := g.interpreter.Interpret(c.Context(), req.Message)
	if err != nil {
		g.logger.Error("interpreting command failed",
			slog.String("operator", operator),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("interpreting command failed")
	}

	proposal, err := g.confirmGW.Propose(chatContext(operator), plan.Proposed())
	if err != nil {
		if errors.Is(err, confirm.ErrCapacity) {
			return c.AbortTooManyRequests("too many pending confirmations")
		}
		return c.AbortInternalServerError("processing failed")
	}
	if proposal == nil {
		return c.OK(CommandResponse{Reply: plan.Reply})
	}

	if proposal.ExecuteNow {
		results, err := g.executor.ExecuteAll(c.Context(), plan.Proposed())
		if err != nil {
			g.logger.Error("executing operations failed",
				slog.String("operator", operator),
				slog.String("error", err.Error()),
			)
			return c.AbortInternalServerError("executing operations failed")
		}
		return c.OK(CommandResponse{Reply: plan.Reply, Results: resultOutputs(results)})
	}

	return c.JSON(http.StatusAccepted, ConfirmationPendingResponse{
		PendingID: proposal.ID,
		Prompt:    proposal.Prompt.Text,
		Confirm:   proposal.Prompt.Confirm.Callback,
		Cancel:    proposal.Prompt.Cancel.Callback,
	})
}

// ConfirmRequest is the JSON body for POST /v1/confirm. Callback is one
// of the two tokens returned by the 202 command response.
type ConfirmRequest struct {
	Callback string `json:"callback"`
}

// ConfirmResponse is the JSON response after resolving a confirmation.
type ConfirmResponse struct {
	Outcome string   `json:"outcome"`
	Results []string `json:"results,omitempty"`
}

func (g *Gateway) handleConfirm(c *okapi.Context) error {
	operator := c.GetString("operator")

	if g.limiter != nil {
		if err := g.limiter.Allow(operatorBucket(operator)); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Callback == "" {
		return c.AbortBadRequest("callback is required")
	}

	resolution, err := g.resolver.Resolve(req.Callback, chatContext(operator))
	if err != nil {
		return c.AbortBadRequest("malformed callback")
	}

	switch resolution.Outcome {
	case confirm.OutcomeApproved:
		results, err := g.executor.ExecuteAll(c.Context(), resolution.Operations)
		if err != nil {
			g.logger.Error("executing confirmed operations failed",
				slog.String("operator", operator),
				slog.String("error", err.Error()),
			)
			return c.AbortInternalServerError("executing confirmed operations failed")
		}
		return c.OK(ConfirmResponse{
			Outcome: resolution.Outcome.String(),
			Results: resultOutputs(results),
		})
	case confirm.OutcomeCancelled:
		return c.OK(ConfirmResponse{Outcome: resolution.Outcome.String()})
	case confirm.OutcomeRejected:
		return c.JSON(http.StatusForbidden, okapi.M{"error": "confirmation belongs to a different session"})
	default:
		return c.JSON(http.StatusGone, okapi.M{"error": "confirmation expired or already handled"})
	}
}

// --- Billing handlers ---

// ResellerRequest is the JSON body for POST /v1/resellers.
type ResellerRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
	Note           string `json:"note,omitempty"`
}

// ResellerResponse is a reseller in API responses.
type ResellerResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
	Note           string `json:"note,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toResellerResponse(r *billing.Reseller) ResellerResponse {
	return ResellerResponse{
		ID:             r.ID.String(),
		Name:           r.Name,
		Phone:          r.Phone,
		TelegramChatID: r.TelegramChatID,
		Note:           r.Note,
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (g *Gateway) handleResellerCreate(c *okapi.Context) error {
	var req ResellerRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Name == "" {
		return c.AbortBadRequest("name is required")
	}

	r, err := g.billing.CreateReseller(c.Context(), req.Name, req.Phone, req.TelegramChatID, req.Note)
	if err != nil {
		if errors.Is(err, billing.ErrDuplicateName) {
			return c.JSON(http.StatusConflict, okapi.M{"error": err.Error()})
		}
		return c.AbortBadRequest(err.Error())
	}
	return c.JSON(http.StatusCreated, toResellerResponse(r))
}

func (g *Gateway) handleResellerList(c *okapi.Context) error {
	resellers, err := g.billing.ListResellers(c.Context())
	if err != nil {
		return c.AbortInternalServerError("listing resellers failed")
	}
	resp := make([]ResellerResponse, len(resellers))
	for i := range resellers {
		resp[i] = toResellerResponse(&resellers[i])
	}
	return c.OK(resp)
}

// StatusResponse is a reseller's account position.
type StatusResponse struct {
	Reseller     ResellerResponse `json:"reseller"`
	Invoiced     string           `json:"invoiced"`
	Paid         string           `json:"paid"`
	Balance      string           `json:"balance"`
	OpenInvoices int              `json:"open_invoices"`
}

func (g *Gateway) handleResellerStatus(c *okapi.Context) error {
	name := c.Param("name")
	sum, err := g.billing.ResellerStatus(c.Context(), name)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "reseller not found"})
	}
	return c.OK(StatusResponse{
		Reseller:     toResellerResponse(sum.Reseller),
		Invoiced:     sum.Invoiced.String(),
		Paid:         sum.Paid.String(),
		Balance:      sum.Balance.String(),
		OpenInvoices: sum.OpenInvoices,
	})
}

// InvoiceResponse is an invoice in API responses.
type InvoiceResponse struct {
	Number   int64  `json:"number"`
	Reseller string `json:"reseller,omitempty"`
	Amount   string `json:"amount"`
	Status   string `json:"status"`
	IssuedAt string `json:"issued_at"`
	DueAt    string `json:"due_at"`
	PaidAt   string `json:"paid_at,omitempty"`
}

func toInvoiceResponse(inv *billing.Invoice, resellerName string) InvoiceResponse {
	resp := InvoiceResponse{
		Number:   inv.Number,
		Reseller: resellerName,
		Amount:   inv.Amount.String(),
		Status:   inv.Status.String(),
		IssuedAt: inv.IssuedAt.UTC().Format(time.RFC3339),
		DueAt:    inv.DueAt.UTC().Format(time.RFC3339),
	}
	if inv.PaidAt != nil {
		resp.PaidAt = inv.PaidAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (g *Gateway) handleResellerInvoices(c *okapi.Context) error {
	name := c.Param("name")
	invoices, err := g.billing.ListInvoices(c.Context(), name)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "reseller not found"})
	}
	resp := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		resp[i] = toInvoiceResponse(&invoices[i], name)
	}
	return c.OK(resp)
}

// InvoiceRequest is the JSON body for POST /v1/invoices.
type InvoiceRequest struct {
	Reseller string `json:"reseller"`
	Amount   string `json:"amount"`             // Exact decimal string.
	DueDate  string `json:"due_date,omitempty"` // YYYY-MM-DD. Empty = 7 days out.
}

func (g *Gateway) handleInvoiceCreate(c *okapi.Context) error {
	var req InvoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Reseller == "" || req.Amount == "" {
		return c.AbortBadRequest("reseller and amount are required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.AbortBadRequest("amount must be a decimal string")
	}
	var due time.Time
	if req.DueDate != "" {
		due, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return c.AbortBadRequest("due_date must be YYYY-MM-DD")
		}
	}

	inv, err := g.billing.IssueInvoice(c.Context(), req.Reseller, amount, due)
	if err != nil {
		if errors.Is(err, billing.ErrResellerNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "reseller not found"})
		}
		return c.AbortBadRequest(err.Error())
	}
	return c.JSON(http.StatusCreated, toInvoiceResponse(inv, req.Reseller))
}

// PaymentRequest is the JSON body for POST /v1/payments.
type PaymentRequest struct {
	Reseller string `json:"reseller"`
	Amount   string `json:"amount"`            // Exact decimal string.
	Invoice  *int64 `json:"invoice,omitempty"` // Invoice number to settle.
	Note     string `json:"note,omitempty"`
}

// PaymentResponse is a payment in API responses.
type PaymentResponse struct {
	ID           string `json:"id"`
	Reseller     string `json:"reseller"`
	Amount       string `json:"amount"`
	Invoice      *int64 `json:"invoice,omitempty"`
	Note         string `json:"note,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

func (g *Gateway) handlePaymentCreate(c *okapi.Context) error {
	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Reseller == "" || req.Amount == "" {
		return c.AbortBadRequest("reseller and amount are required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.AbortBadRequest("amount must be a decimal string")
	}

	p, err := g.billing.RegisterPayment(c.Context(), req.Reseller, amount, req.Invoice, req.Note)
	if err != nil {
		if errors.Is(err, billing.ErrResellerNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "reseller not found"})
		}
		return c.AbortBadRequest(err.Error())
	}
	return c.JSON(http.StatusCreated, PaymentResponse{
		ID:           p.ID.String(),
		Reseller:     req.Reseller,
		Amount:       p.Amount.String(),
		Invoice:      req.Invoice,
		Note:         p.Note,
		RegisteredAt: p.RegisteredAt.UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) handleOverdueInvoices(c *okapi.Context) error {
	invoices, err := g.billing.ListOverdue(c.Context())
	if err != nil {
		return c.AbortInternalServerError("listing overdue invoices failed")
	}
	resp := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		name := ""
		if r, err := g.billing.GetReseller(c.Context(), invoices[i].ResellerID); err == nil {
			name = r.Name
		}
		resp[i] = toInvoiceResponse(&invoices[i], name)
	}
	return c.OK(resp)
}

// --- Reminder template handlers ---

// ReminderTemplateRequest is the JSON body for POST /v1/reminders.
type ReminderTemplateRequest struct {
	Name     string `json:"name"`
	CronSpec string `json:"cron_spec"`
	Body     string `json:"body"`
	Enabled  *bool  `json:"enabled,omitempty"` // Default true.
}

// ReminderTemplateResponse is a reminder template in API responses.
type ReminderTemplateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CronSpec  string `json:"cron_spec"`
	Body      string `json:"body"`
	Enabled   bool   `json:"enabled"`
	LastRunAt string `json:"last_run_at,omitempty"`
}

func toTemplateResponse(t *billing.ReminderTemplate) ReminderTemplateResponse {
	resp := ReminderTemplateResponse{
		ID:       t.ID.String(),
		Name:     t.Name,
		CronSpec: t.CronSpec,
		Body:     t.Body,
		Enabled:  t.Enabled,
	}
	if t.LastRunAt != nil {
		resp.LastRunAt = t.LastRunAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (g *Gateway) handleReminderCreate(c *okapi.Context) error {
	var req ReminderTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Name == "" || req.CronSpec == "" || req.Body == "" {
		return c.AbortBadRequest("name, cron_spec, and body are required")
	}
	if err := reminder.ValidateCronSpec(req.CronSpec); err != nil {
		return c.AbortBadRequest(fmt.Sprintf("invalid cron_spec: %s", err))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	tpl := &billing.ReminderTemplate{
		Name:     req.Name,
		CronSpec: req.CronSpec,
		Body:     req.Body,
		Enabled:  enabled,
	}
	if err := g.templates.Create(c.Context(), tpl); err != nil {
		return c.AbortBadRequest(fmt.Sprintf("creating reminder template: %s", err))
	}
	return c.JSON(http.StatusCreated, toTemplateResponse(tpl))
}

func (g *Gateway) handleReminderList(c *okapi.Context) error {
	templates, err := g.templates.ListEnabled(c.Context())
	if err != nil {
		return c.AbortInternalServerError("listing reminder templates failed")
	}
	resp := make([]ReminderTemplateResponse, len(templates))
	for i := range templates {
		resp[i] = toTemplateResponse(&templates[i])
	}
	return c.OK(resp)
}

// --- Health handlers ---

// HealthResponse is the JSON response for the liveness probe.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped operator name
// on the request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		operator := ""
		for key, name := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				operator = name
			}
		}
		if operator == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("operator", operator)
		return next(c)
	}
}

// --- Helpers ---

func resultOutputs(results []ops.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Output
	}
	return out
}

// operatorBucket maps an operator name onto the limiter's integer key space.
func operatorBucket(operator string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(operator))
	return int64(h.Sum64())
}
