// Package interp turns free-form operator chat (Persian or English) into
// a structured plan of panel operations using an LLM with a constrained
// JSON output schema. The interpreter only proposes; it never executes.
package interp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"github.com/rasidhq/rasid/internal/confirm"
	"github.com/rasidhq/rasid/internal/ops"
)

// Plan is the model's structured answer to an operator message.
type Plan struct {
	// Reply is a short conversational answer in the operator's language.
	// Used alone when no operations are proposed.
	Reply string `json:"reply" jsonschema:"description=Short reply in the operator's language"`

	// Operations are the panel operations the message asks for, in
	// execution order. Empty for questions and small talk.
	Operations []PlannedOperation `json:"operations" jsonschema:"description=Panel operations to perform, empty if none"`
}

// PlannedOperation names one registry operation with its arguments.
type PlannedOperation struct {
	Name string         `json:"name" jsonschema:"description=Operation name from the catalog"`
	Args map[string]any `json:"args" jsonschema:"description=Arguments matching the operation's schema"`
}

// Config holds interpreter settings.
type Config struct {
	APIKey  string
	BaseURL string // Optional override for OpenAI-compatible endpoints.
	Model   string
}

// Interpreter plans operations from chat messages.
type Interpreter struct {
	client   *openai.Client
	registry *ops.Registry
	model    string
	schema   map[string]any
	logger   *slog.Logger
}

// New creates an interpreter over the operation registry.
func New(cfg Config, registry *ops.Registry, logger *slog.Logger) (*Interpreter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("interpreter API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = string(shared.ChatModelGPT4o)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	schema, err := planSchema()
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		client:   &client,
		registry: registry,
		model:    cfg.Model,
		schema:   schema,
		logger:   logger,
	}, nil
}

// Interpret plans the operations an operator message asks for.
func (i *Interpreter) Interpret(ctx context.Context, message string) (*Plan, error) {
	prompt := i.buildPrompt(message)

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(i.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "operation_plan",
					Schema:      i.schema,
					Description: param.NewOpt("A plan of panel operations for an operator message"),
				},
			},
		},
	}

	resp, err := i.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("interpreting message: %w", err)
	}
	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("model returned empty output")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	i.logger.InfoContext(ctx, "message interpreted",
		slog.Int("operations", len(plan.Operations)))
	return &plan, nil
}

// Proposed converts a plan's operations into the gateway's frozen form.
func (p *Plan) Proposed() []confirm.ProposedOperation {
	if len(p.Operations) == 0 {
		return nil
	}
	out := make([]confirm.ProposedOperation, 0, len(p.Operations))
	for _, op := range p.Operations {
		args := op.Args
		if args == nil {
			args = map[string]any{}
		}
		out = append(out, confirm.ProposedOperation{Name: op.Name, Args: args})
	}
	return out
}

func (i *Interpreter) buildPrompt(message string) string {
	var b strings.Builder
	b.WriteString(`You are Rasid, the assistant of a reseller billing panel.
Operators write in Persian or English. Map their message onto the
operation catalog below and answer with a plan.

Rules:
1. Propose ONLY operations from the catalog, with arguments matching
   the listed schema.
2. Amounts must be exact decimal strings (e.g. "1250000.00"), never
   floats.
3. If the message is a question or chit-chat, leave operations empty
   and answer in "reply", in the operator's language.
4. Never invent reseller names or invoice numbers; use what the
   operator wrote.
5. Multiple actions in one message become multiple operations in
   order.

Operation catalog:
`)
	b.WriteString(renderCatalog(i.registry))
	b.WriteString("\nOperator message: ")
	b.WriteString(message)
	return b.String()
}

// renderCatalog lists every registered operation with its schema so the
// model has the full closed set in context.
func renderCatalog(registry *ops.Registry) string {
	var b strings.Builder
	for _, name := range registry.List() {
		op := registry.Get(name)
		schemaJSON, err := json.Marshal(op.InputSchema())
		if err != nil {
			schemaJSON = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s\n  schema: %s\n", op.Name(), op.Description(), schemaJSON)
	}
	return b.String()
}

// planSchema reflects the Plan struct into a JSON schema map.
// AllowAdditionalProperties stays on because operation args are
// free-form objects validated at execution time.
func planSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(Plan{}))
	if err != nil {
		return nil, fmt.Errorf("marshaling plan schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding plan schema: %w", err)
	}
	return m, nil
}
