package confirm

import (
	"errors"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, opts ...StoreOption) *Gateway {
	t.Helper()
	store := NewStore(DefaultTTL, testLogger(), opts...)
	return NewGateway(NewClassifier(testDestructive, testSafe), NewRenderer(), store, testLogger())
}

func TestResolveConfirmThenReplay(t *testing.T) {
	g := newTestGateway(t)

	proposal, err := g.Propose("chat-1", sampleOps())
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal.ExecuteNow {
		t.Fatal("destructive batch must not bypass confirmation")
	}

	resolver := g.Resolver()

	res, err := resolver.Resolve(proposal.Prompt.Confirm.Callback, "chat-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, want approved", res.Outcome)
	}
	if len(res.Operations) != 1 || res.Operations[0].Name != "register_payment" {
		t.Fatalf("approved operations = %+v", res.Operations)
	}

	// Second tap on the same button: already consumed.
	res, err = resolver.Resolve(proposal.Prompt.Confirm.Callback, "chat-1")
	if err != nil {
		t.Fatalf("Resolve replay: %v", err)
	}
	if res.Outcome != OutcomeExpired {
		t.Errorf("replay outcome = %s, want expired", res.Outcome)
	}
	if res.Operations != nil {
		t.Error("replay must not release operations")
	}
}

func TestResolveCancel(t *testing.T) {
	g := newTestGateway(t)

	proposal, err := g.Propose("chat-1", sampleOps())
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	res, err := g.Resolver().Resolve(proposal.Prompt.Cancel.Callback, "chat-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", res.Outcome)
	}
	if res.Operations != nil {
		t.Error("cancel must not release operations")
	}
}

func TestResolveCrossChatNeverApproves(t *testing.T) {
	for _, verb := range []string{"confirm_action", "cancel_action"} {
		g := newTestGateway(t)
		proposal, err := g.Propose("chat-1", sampleOps())
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}

		res, err := g.Resolver().Resolve(verb+":"+proposal.ID, "chat-2")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Outcome != OutcomeRejected {
			t.Errorf("verb %s from foreign chat: outcome = %s, want rejected", verb, res.Outcome)
		}
		if res.Operations != nil {
			t.Errorf("verb %s from foreign chat released operations", verb)
		}
	}
}

func TestResolveExpired(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(time.Minute, testLogger(), WithClock(clock.Now))
	g := NewGateway(NewClassifier(testDestructive, testSafe), NewRenderer(), store, testLogger())

	proposal, err := g.Propose("chat-1", sampleOps())
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	clock.Advance(2 * time.Minute)

	res, err := g.Resolver().Resolve(proposal.Prompt.Confirm.Callback, "chat-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeExpired {
		t.Errorf("outcome = %s, want expired", res.Outcome)
	}
}

func TestResolveMalformedCallback(t *testing.T) {
	g := newTestGateway(t)
	resolver := g.Resolver()

	for _, raw := range []string{"", "confirm_action", "confirm_action:", "approve:xyz", "noise"} {
		if _, err := resolver.Resolve(raw, "chat-1"); !errors.Is(err, ErrBadCallback) {
			t.Errorf("Resolve(%q) err = %v, want ErrBadCallback", raw, err)
		}
	}
}

func TestParseCallback(t *testing.T) {
	verb, id, err := ParseCallback("cancel_action:deadbeef")
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if verb != "cancel_action" || id != "deadbeef" {
		t.Errorf("ParseCallback = (%q, %q)", verb, id)
	}
}

func TestProposeEmptyBatch(t *testing.T) {
	g := newTestGateway(t)
	proposal, err := g.Propose("chat-1", nil)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal != nil {
		t.Errorf("empty batch proposal = %+v, want nil", proposal)
	}
}

func TestProposeSafeBatchBypasses(t *testing.T) {
	g := newTestGateway(t)
	proposal, err := g.Propose("chat-1", []ProposedOperation{{Name: "list_resellers"}})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if !proposal.ExecuteNow {
		t.Error("all-safe batch should bypass confirmation")
	}
	if g.store.Len() != 0 {
		t.Error("bypassed batch must not be stored")
	}
}

func TestProposeUnknownOperationRequiresConfirmation(t *testing.T) {
	g := newTestGateway(t)
	proposal, err := g.Propose("chat-1", []ProposedOperation{{Name: "brand_new_op"}})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal.ExecuteNow {
		t.Error("unknown operation must not bypass confirmation")
	}
}
