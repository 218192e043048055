package confirm

import (
	"errors"
	"log/slog"
	"strings"
)

// Outcome is the terminal result of resolving a callback.
type Outcome int

const (
	// OutcomeApproved means the pending action was confirmed in its own
	// chat; the frozen operations are released for execution.
	OutcomeApproved Outcome = iota
	// OutcomeCancelled means the operator declined; nothing executes.
	OutcomeCancelled
	// OutcomeExpired covers unknown, already-handled, and timed-out IDs.
	OutcomeExpired
	// OutcomeRejected means the ID was valid but the decision arrived
	// from a different chat than the action was created in.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeExpired:
		return "expired"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Resolution is the result of resolving a raw callback.
// Operations is populated only for OutcomeApproved.
type Resolution struct {
	Outcome    Outcome
	Operations []ProposedOperation
}

// ErrBadCallback means the raw callback string does not follow the
// "<verb>_action:<id>" grammar.
var ErrBadCallback = errors.New("malformed callback data")

// ParseCallback splits a raw callback token into its verb and pending
// action ID. Only the two verbs of the grammar are accepted.
func ParseCallback(raw string) (verb, id string, err error) {
	verb, id, ok := strings.Cut(raw, callbackSep)
	if !ok || id == "" || (verb != confirmVerb && verb != cancelVerb) {
		return "", "", ErrBadCallback
	}
	return verb, id, nil
}

// Resolver consumes callback decisions against the store. It authorizes;
// it never executes. Approved operations are returned to the caller,
// which hands them to the executor exactly once.
type Resolver struct {
	store   *Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger, metrics: store.metrics}
}

// Resolve parses the raw callback, consumes the pending action at most
// once, and reports the outcome. Double taps, replays, and expired IDs
// all collapse to OutcomeExpired; a chat mismatch is OutcomeRejected and
// the action is gone either way — absence of a clean confirmation always
// means non-execution.
func (r *Resolver) Resolve(rawCallback, chatContext string) (Resolution, error) {
	verb, id, err := ParseCallback(rawCallback)
	if err != nil {
		return Resolution{}, err
	}

	pa, err := r.store.Consume(id)
	if err != nil {
		r.metrics.incResolved(OutcomeExpired.String())
		r.logger.Info("confirmation for absent pending action",
			slog.String("pending_id", id),
			slog.String("chat", chatContext),
		)
		return Resolution{Outcome: OutcomeExpired}, nil
	}

	if pa.ChatContext != chatContext {
		r.metrics.incResolved(OutcomeRejected.String())
		r.logger.Warn("cross-chat confirmation rejected",
			slog.String("pending_id", id),
			slog.String("origin_chat", pa.ChatContext),
			slog.String("callback_chat", chatContext),
		)
		return Resolution{Outcome: OutcomeRejected}, nil
	}

	if verb == cancelVerb {
		r.metrics.incResolved(OutcomeCancelled.String())
		r.logger.Info("pending action cancelled", slog.String("pending_id", id))
		return Resolution{Outcome: OutcomeCancelled}, nil
	}

	r.metrics.incResolved(OutcomeApproved.String())
	r.logger.Info("pending action approved",
		slog.String("pending_id", id),
		slog.Int("operations", len(pa.Operations)),
	)
	return Resolution{Outcome: OutcomeApproved, Operations: pa.Operations}, nil
}
