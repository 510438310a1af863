package conversation

import (
	"testing"

	"github.com/parley-chat/parley/internal/agent"
)

func TestHistory(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
		{Role: RoleSystem, Content: "be brief"},
	}

	got := History(msgs)
	if len(got) != 3 {
		t.Fatalf("History() length = %d, want 3", len(got))
	}

	want := []agent.Message{
		{Role: agent.RoleUser, Content: "hello"},
		{Role: agent.RoleAssistant, Content: "hi there"},
		{Role: agent.RoleSystem, Content: "be brief"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHistoryEmpty(t *testing.T) {
	t.Parallel()

	if got := History(nil); len(got) != 0 {
		t.Errorf("History(nil) = %v, want empty", got)
	}
}
