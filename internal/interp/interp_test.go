package interp

import (
	"context"
	"strings"
	"testing"

	"github.com/rasidhq/rasid/internal/ops"
)

type catalogOp struct {
	name        string
	destructive bool
}

func (o *catalogOp) Name() string        { return o.name }
func (o *catalogOp) Description() string { return "does " + o.name }
func (o *catalogOp) Destructive() bool   { return o.destructive }
func (o *catalogOp) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"who": map[string]any{"type": "string"}},
		"required":   []string{"who"},
	}
}
func (o *catalogOp) Execute(context.Context, map[string]any) (*ops.Result, error) {
	return &ops.Result{Output: o.name}, nil
}

func TestRenderCatalogListsEveryOperation(t *testing.T) {
	r := ops.NewRegistry()
	r.Register(&catalogOp{name: "issue_invoice", destructive: true})
	r.Register(&catalogOp{name: "list_resellers"})

	catalog := renderCatalog(r)
	for _, want := range []string{"issue_invoice", "list_resellers", `"required":["who"]`} {
		if !strings.Contains(catalog, want) {
			t.Errorf("catalog missing %q:\n%s", want, catalog)
		}
	}
}

func TestPlanProposed(t *testing.T) {
	p := &Plan{
		Reply: "باشه",
		Operations: []PlannedOperation{
			{Name: "issue_invoice", Args: map[string]any{"reseller": "Store A", "amount": "100.00"}},
			{Name: "send_message", Args: nil},
		},
	}
	proposed := p.Proposed()
	if len(proposed) != 2 {
		t.Fatalf("got %d operations, want 2", len(proposed))
	}
	if proposed[0].Name != "issue_invoice" || proposed[0].Args["reseller"] != "Store A" {
		t.Errorf("first operation wrong: %+v", proposed[0])
	}
	if proposed[1].Args == nil {
		t.Error("nil args must be normalized to an empty map")
	}

	empty := (&Plan{Reply: "hi"}).Proposed()
	if empty != nil {
		t.Errorf("empty plan should propose nil, got %v", empty)
	}
}

func TestPlanSchemaIsObject(t *testing.T) {
	schema, err := planSchema()
	if err != nil {
		t.Fatalf("planSchema: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties map")
	}
	for _, key := range []string{"reply", "operations"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing property %q", key)
		}
	}
}
