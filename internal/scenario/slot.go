package scenario

// SlotKind is the storage shape of a scenario's output in the fact projection.
type SlotKind int

const (
	// ExtraSlot stores the whole generated mapping under extra[code].
	ExtraSlot SlotKind = iota
	// TextSlot stores scalar text in a dedicated column.
	TextSlot
	// ExtraTextSlot stores scalar text under extra[code].
	ExtraTextSlot
	// ListSlot stores {"items": [...]} in a dedicated column.
	ListSlot
)

func (k SlotKind) String() string {
	switch k {
	case TextSlot:
		return "text"
	case ExtraTextSlot:
		return "extra_text"
	case ListSlot:
		return "list"
	default:
		return "extra"
	}
}

// Slot tells the fact store where a scenario's output goes. Column is set
// for TextSlot and ListSlot; ExtraKey for the extra-backed kinds.
type Slot struct {
	Code     string
	Kind     SlotKind
	Column   string
	ExtraKey string
}

var knownSlots = map[string]SlotKind{
	"mission":    TextSlot,
	"love":       TextSlot,
	"finance":    ExtraTextSlot,
	"karma":      ExtraTextSlot,
	"year":       ExtraTextSlot,
	"strengths":  ListSlot,
	"weaknesses": ListSlot,
	"business":   ListSlot,
	"countries":  ListSlot,
}

// SlotFor returns the slot of a code. Unknown codes are ExtraSlot.
func SlotFor(code string) Slot {
	kind, ok := knownSlots[code]
	if !ok {
		kind = ExtraSlot
	}
	s := Slot{Code: code, Kind: kind}
	switch kind {
	case TextSlot, ListSlot:
		s.Column = code
	default:
		s.ExtraKey = code
	}
	return s
}

// IsList reports whether generated output is expected as {"items": [...]}.
func (s Slot) IsList() bool { return s.Kind == ListSlot }

// IsText reports whether the slot holds scalar text.
func (s Slot) IsText() bool { return s.Kind == TextSlot || s.Kind == ExtraTextSlot }
