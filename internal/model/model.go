package model

// Kind is the classification label of an archived letter.
type Kind string

const (
	KindIncoming Kind = "incoming"
	KindOutgoing Kind = "outgoing"
	KindOther    Kind = "other"
)

// Kinds lists every valid kind in display order.
var Kinds = []Kind{KindIncoming, KindOutgoing, KindOther}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIncoming, KindOutgoing, KindOther:
		return true
	}
	return false
}

// Dated reports whether documents of this kind are filed by year and month.
func (k Kind) Dated() bool {
	return k == KindIncoming || k == KindOutgoing
}
