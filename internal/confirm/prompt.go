package confirm

// Callback token grammar. This is the only bit-exact contract the gateway
// owns: the chat transport relays a button press back as exactly one of
// these strings and the resolver reconstructs (decision, id) from it.
const (
	confirmVerb = "confirm_action"
	cancelVerb  = "cancel_action"

	callbackSep = ":"
)

// Affordance is one of the two decision buttons attached to a
// confirmation prompt.
type Affordance struct {
	Label    string // Shown on the button.
	Callback string // Opaque token the transport echoes back, "confirm_action:<id>" or "cancel_action:<id>".
}

// OutboundPrompt is the confirmation message handed to the chat
// transport: the frozen description embedded in bilingual framing plus
// exactly two decision affordances.
type OutboundPrompt struct {
	Text    string
	Confirm Affordance
	Cancel  Affordance
}

// BuildPrompt assembles the outbound confirmation message for a pending
// action. Side-effect-free; the description is embedded verbatim.
func BuildPrompt(description, id string) OutboundPrompt {
	text := "⚠️ تأیید عملیات لازم است (confirmation required)\n\n" +
		description +
		"\n\nآیا انجام شود؟ (proceed?)"

	return OutboundPrompt{
		Text: text,
		Confirm: Affordance{
			Label:    "✅ تأیید (Confirm)",
			Callback: confirmVerb + callbackSep + id,
		},
		Cancel: Affordance{
			Label:    "❌ لغو (Cancel)",
			Callback: cancelVerb + callbackSep + id,
		},
	}
}
