package confirm

import "testing"

var (
	testDestructive = []string{
		"create_reseller", "update_reseller", "issue_invoice",
		"cancel_invoice", "register_payment", "send_message",
	}
	testSafe = []string{"list_resellers", "list_invoices", "overdue_invoices"}
)

func TestClassifierCompleteness(t *testing.T) {
	c := NewClassifier(testDestructive, testSafe)

	for _, name := range testDestructive {
		if !c.Destructive(name) {
			t.Errorf("Destructive(%q) = false, want true", name)
		}
	}
	for _, name := range testSafe {
		if c.Destructive(name) {
			t.Errorf("Destructive(%q) = true, want false", name)
		}
	}
	if c.Destructive("freshly_invented_operation") {
		t.Error("Destructive(unregistered) = true, want false")
	}
	if c.Known("freshly_invented_operation") {
		t.Error("Known(unregistered) = true, want false")
	}
}

func TestRequiresConfirmation(t *testing.T) {
	c := NewClassifier(testDestructive, testSafe)

	tests := []struct {
		name string
		ops  []ProposedOperation
		want bool
	}{
		{"empty batch", nil, false},
		{"all safe", []ProposedOperation{{Name: "list_resellers"}, {Name: "list_invoices"}}, false},
		{"one destructive", []ProposedOperation{{Name: "list_resellers"}, {Name: "register_payment"}}, true},
		{"all destructive", []ProposedOperation{{Name: "issue_invoice"}, {Name: "send_message"}}, true},
		// Unknown names fail closed: an unrecognized but effectful
		// operation must never slip past the gateway.
		{"unknown alone", []ProposedOperation{{Name: "drop_everything"}}, true},
		{"unknown among safe", []ProposedOperation{{Name: "list_invoices"}, {Name: "mystery_op"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.RequiresConfirmation(tt.ops); got != tt.want {
				t.Errorf("RequiresConfirmation = %v, want %v", got, tt.want)
			}
		})
	}
}
