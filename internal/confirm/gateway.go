package confirm

import (
	"log/slog"
)

// Proposal is the gateway's answer to a proposed batch.
type Proposal struct {
	// ExecuteNow is true when every operation in the batch is enumerated
	// safe: the gateway bypasses confirmation entirely. This bypass is a
	// deliberate policy, not an accident of classification — anything
	// destructive or unknown goes through the prompt.
	ExecuteNow bool

	// ID and Prompt are set when confirmation is required.
	ID     string
	Prompt OutboundPrompt
}

// Gateway wires the classifier, renderer, and store into the single
// entry point the transports call with interpreter output.
type Gateway struct {
	classifier *Classifier
	renderer   *Renderer
	store      *Store
	logger     *slog.Logger
}

// NewGateway creates a confirmation gateway.
func NewGateway(classifier *Classifier, renderer *Renderer, store *Store, logger *slog.Logger) *Gateway {
	return &Gateway{
		classifier: classifier,
		renderer:   renderer,
		store:      store,
		logger:     logger,
	}
}

// Resolver returns a resolver bound to the gateway's store.
func (g *Gateway) Resolver() *Resolver {
	return NewResolver(g.store, g.logger)
}

// Propose intercepts a batch of interpreter-proposed operations.
// An empty batch is a no-op (nil, nil). A batch of enumerated safe
// operations is released for immediate execution. Anything else is
// rendered, frozen in the store, and answered with a confirmation
// prompt for the originating chat.
func (g *Gateway) Propose(chatContext string, operations []ProposedOperation) (*Proposal, error) {
	if len(operations) == 0 {
		return nil, nil
	}

	if !g.classifier.RequiresConfirmation(operations) {
		return &Proposal{ExecuteNow: true}, nil
	}

	description := g.renderer.Render(operations)
	id, err := g.store.Create(chatContext, description, operations)
	if err != nil {
		return nil, err
	}

	return &Proposal{ID: id, Prompt: BuildPrompt(description, id)}, nil
}
