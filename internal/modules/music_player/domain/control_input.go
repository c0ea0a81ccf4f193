package domain

// ControlInput is one of the fixed remote-control actions offered on a control surface.
type ControlInput int

const (
	ControlPause ControlInput = iota
	ControlResume
	ControlSkip
	ControlStop
	ControlShowQueue
	ControlPlayLocal
)

// LocalShortcutIndex is the 1-based local song number played by ControlPlayLocal.
const LocalShortcutIndex = 2

var controlEmojis = map[ControlInput]string{
	ControlPause:     "⏸️",
	ControlResume:    "▶️",
	ControlSkip:      "⏭️",
	ControlStop:      "⏹️",
	ControlShowQueue: "📜",
	ControlPlayLocal: "2️⃣",
}

var controlNames = map[ControlInput]string{
	ControlPause:     "Pause",
	ControlResume:    "Resume",
	ControlSkip:      "Skip",
	ControlStop:      "Stop",
	ControlShowQueue: "Queue",
	ControlPlayLocal: "Local #2",
}

// Emoji returns the reaction that triggers the input.
func (c ControlInput) Emoji() string {
	return controlEmojis[c]
}

// String returns the name shown in control surface footers.
func (c ControlInput) String() string {
	return controlNames[c]
}

// ControlInputs returns the affordances of a control surface in display order.
// The local shortcut is only offered when a local library is configured.
func ControlInputs(localEnabled bool) []ControlInput {
	inputs := []ControlInput{
		ControlPause,
		ControlResume,
		ControlSkip,
		ControlStop,
		ControlShowQueue,
	}
	if localEnabled {
		inputs = append(inputs, ControlPlayLocal)
	}
	return inputs
}

// ParseControlInput maps a reaction emoji to its control input.
// Variation selectors are optional, since clients do not always send them.
func ParseControlInput(emoji string) (ControlInput, bool) {
	for input, candidate := range controlEmojis {
		if emoji == candidate || emoji == stripVariationSelector(candidate) {
			return input, true
		}
	}
	return 0, false
}

func stripVariationSelector(s string) string {
	runes := []rune(s)
	out := runes[:0]
	for _, r := range runes {
		if r != '\uFE0F' {
			out = append(out, r)
		}
	}
	return string(out)
}
