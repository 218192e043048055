package confirm

import (
	"fmt"
	"strings"
)

// Renderer turns a proposed batch into the human-readable summary the
// operator confirms. Pure and deterministic: the summary is frozen on the
// pending action and must be reproducible for audit.
//
// Each operation renders as one numbered line, Persian first with the
// English equivalent in parentheses. Names without a specific rule fall
// back to a generic line; rendering never fails and never drops an
// operation.
type Renderer struct {
	rules map[string]renderRule
}

type renderRule func(args map[string]any) string

// NewRenderer creates a renderer with the built-in rule set.
func NewRenderer() *Renderer {
	return &Renderer{rules: map[string]renderRule{
		"create_reseller": func(a map[string]any) string {
			return fmt.Sprintf("ایجاد نماینده جدید «%s» (create reseller %q)",
				argString(a, "name"), argString(a, "name"))
		},
		"update_reseller": func(a map[string]any) string {
			return fmt.Sprintf("ویرایش نماینده «%s» (update reseller %q)",
				argString(a, "name"), argString(a, "name"))
		},
		"issue_invoice": func(a map[string]any) string {
			return fmt.Sprintf("صدور فاکتور به مبلغ %s برای «%s» (issue invoice of %s for %q)",
				argString(a, "amount"), argString(a, "reseller"),
				argString(a, "amount"), argString(a, "reseller"))
		},
		"cancel_invoice": func(a map[string]any) string {
			return fmt.Sprintf("ابطال فاکتور %s (cancel invoice %s)",
				argString(a, "invoice"), argString(a, "invoice"))
		},
		"register_payment": func(a map[string]any) string {
			return fmt.Sprintf("ثبت پرداخت به مبلغ %s برای «%s» (register payment of %s for %q)",
				argString(a, "amount"), argString(a, "target"),
				argString(a, "amount"), argString(a, "target"))
		},
		"send_message": func(a map[string]any) string {
			return fmt.Sprintf("ارسال پیام به «%s» (send message to %q): %s",
				argString(a, "recipient"), argString(a, "recipient"),
				truncateText(argString(a, "text"), 120))
		},
	}}
}

// Render produces one 1-indexed numbered line per operation, in input
// order. Total: unknown names use the generic fallback.
func (r *Renderer) Render(ops []ProposedOperation) string {
	var b strings.Builder
	for i, op := range ops {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, r.renderOne(op))
	}
	return b.String()
}

func (r *Renderer) renderOne(op ProposedOperation) string {
	if rule, ok := r.rules[op.Name]; ok {
		return rule(op.Args)
	}
	return fmt.Sprintf("اجرای عملیات: %s (execute operation: %s)", op.Name, op.Name)
}

// argString formats a single argument value. Missing keys render as "?"
// rather than failing; the operator still sees which operation would run.
func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return "?"
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fractional part.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
