package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name   string
		kind   DocKind
		from   Status
		action Action
		want   Status
		ok     bool
	}{
		{"authorize draft", KindReceiving, StatusDraft, ActionAuthorize, StatusAuthorized, true},
		{"authorize twice", KindReceiving, StatusAuthorized, ActionAuthorize, StatusAuthorized, false},
		{"void draft", KindBill, StatusDraft, ActionVoid, StatusVoid, true},
		{"void authorized", KindBill, StatusAuthorized, ActionVoid, StatusVoid, true},
		{"undo authorized", KindCreditNote, StatusAuthorized, ActionUndo, StatusDraft, true},
		{"undo draft", KindCreditNote, StatusDraft, ActionUndo, StatusDraft, false},
		{"complete bill", KindBill, StatusAuthorized, ActionComplete, StatusCompleted, true},
		{"complete receiving", KindReceiving, StatusAuthorized, ActionComplete, StatusAuthorized, false},
		{"void is terminal", KindUnstock, StatusVoid, ActionAuthorize, StatusVoid, false},
		{"completed is terminal", KindBill, StatusCompleted, ActionVoid, StatusCompleted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CanTransition(tc.kind, tc.from, tc.action)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestActions(t *testing.T) {
	require.ElementsMatch(t, []Action{ActionAuthorize, ActionVoid}, Actions(KindReceiving, StatusDraft))
	require.ElementsMatch(t, []Action{ActionVoid, ActionUndo, ActionComplete}, Actions(KindBill, StatusAuthorized))
	require.ElementsMatch(t, []Action{ActionVoid, ActionUndo}, Actions(KindUnstock, StatusAuthorized))
	require.Empty(t, Actions(KindBill, StatusCompleted))
	require.Empty(t, Actions(KindPick, StatusVoid))
}
