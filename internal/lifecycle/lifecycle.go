// Package lifecycle defines the document status state machine shared by
// purchasing and assembly documents.
package lifecycle

// Status of a workflow document.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCompleted  Status = "COMPLETED"
	StatusVoid       Status = "VOID"
)

// Action a user may take on a document.
type Action string

const (
	ActionAuthorize Action = "AUTHORIZE"
	ActionVoid      Action = "VOID"
	ActionUndo      Action = "UNDO"
	ActionComplete  Action = "COMPLETE"
)

// DocKind identifies a document type. Not every kind supports every status:
// only bills can be completed.
type DocKind string

const (
	KindReceiving  DocKind = "RECEIVING"
	KindBill       DocKind = "BILL"
	KindCreditNote DocKind = "CREDIT_NOTE"
	KindUnstock    DocKind = "UNSTOCK"
	KindAssembly   DocKind = "ASSEMBLY_ORDER"
	KindPick       DocKind = "ASSEMBLY_PICK"
	KindResult     DocKind = "ASSEMBLY_RESULT"
)

// Terminal reports whether no action can leave the status.
func (s Status) Terminal() bool {
	return s == StatusVoid || s == StatusCompleted
}

// CanTransition returns the resulting status for applying action to a
// document of the given kind, and whether the transition is legal.
func CanTransition(kind DocKind, from Status, action Action) (Status, bool) {
	if from.Terminal() {
		return from, false
	}
	switch action {
	case ActionAuthorize:
		if from == StatusDraft {
			return StatusAuthorized, true
		}
	case ActionVoid:
		// Voiding an authorized document releases the quantity it consumed.
		if from == StatusDraft || from == StatusAuthorized {
			return StatusVoid, true
		}
	case ActionUndo:
		if from == StatusAuthorized {
			return StatusDraft, true
		}
	case ActionComplete:
		if kind == KindBill && from == StatusAuthorized {
			return StatusCompleted, true
		}
	}
	return from, false
}

// Actions lists the legal actions for a document in the given status.
func Actions(kind DocKind, from Status) []Action {
	var out []Action
	for _, action := range []Action{ActionAuthorize, ActionVoid, ActionUndo, ActionComplete} {
		if _, ok := CanTransition(kind, from, action); ok {
			out = append(out, action)
		}
	}
	return out
}
