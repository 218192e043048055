package confirm

// Classifier decides which operations may run without confirmation.
// Both sets are fixed at construction: destructive names always require
// confirmation, safe names never do on their own, and everything else is
// unknown.
type Classifier struct {
	destructive map[string]struct{}
	safe        map[string]struct{}
}

// NewClassifier builds a classifier from an explicit enumeration of
// destructive and safe operation names.
func NewClassifier(destructive, safe []string) *Classifier {
	c := &Classifier{
		destructive: make(map[string]struct{}, len(destructive)),
		safe:        make(map[string]struct{}, len(safe)),
	}
	for _, name := range destructive {
		c.destructive[name] = struct{}{}
	}
	for _, name := range safe {
		c.safe[name] = struct{}{}
	}
	return c
}

// Destructive reports whether executing the named operation without
// confirmation would mutate durable state or have an irreversible
// external effect. Unknown names return false; batch-level safety for
// unknown names is RequiresConfirmation's job.
func (c *Classifier) Destructive(name string) bool {
	_, ok := c.destructive[name]
	return ok
}

// Known reports whether the name is in either enumerated set.
func (c *Classifier) Known(name string) bool {
	if _, ok := c.destructive[name]; ok {
		return true
	}
	_, ok := c.safe[name]
	return ok
}

// RequiresConfirmation decides whether a proposed batch needs operator
// sign-off. The policy is fail-closed: a batch containing any destructive
// operation, or any operation the classifier has never heard of, requires
// confirmation. Only a non-empty batch made entirely of enumerated safe
// operations bypasses the gateway.
func (c *Classifier) RequiresConfirmation(ops []ProposedOperation) bool {
	if len(ops) == 0 {
		return false
	}
	for _, op := range ops {
		if c.Destructive(op.Name) || !c.Known(op.Name) {
			return true
		}
	}
	return false
}
