package privacy

import (
	"testing"

	"github.com/agentmem/agentmem/internal/model"
)

func TestVisible_PublicAlwaysVisible(t *testing.T) {
	m := &model.Memory{Privacy: model.PrivacyPublic, CreatedBy: "alice"}
	if !Visible(m, "", nil) {
		t.Error("expected public memory visible to anyone, including anonymous")
	}
}

func TestVisible_PrivateRequiresOwner(t *testing.T) {
	m := &model.Memory{Privacy: model.PrivacyPrivate, CreatedBy: "alice"}
	if !Visible(m, "alice", nil) {
		t.Error("expected owner to see their own private memory")
	}
	if Visible(m, "bob", nil) {
		t.Error("expected non-owner to be denied a private memory")
	}
}

func TestVisible_TeamUsesOracle(t *testing.T) {
	m := &model.Memory{Privacy: model.PrivacyTeam}
	denyAll := func(userID string) bool { return false }
	if Visible(m, "bob", denyAll) {
		t.Error("expected team visibility to respect a denying oracle")
	}
	if !Visible(m, "bob", AllMembers) {
		t.Error("expected team visibility to respect an allowing oracle")
	}
}

func TestVisible_TeamDefaultsToAllMembersWhenOracleNil(t *testing.T) {
	m := &model.Memory{Privacy: model.PrivacyTeam}
	if !Visible(m, "bob", nil) {
		t.Error("expected nil oracle to default to AllMembers")
	}
}

func TestFilter_PreservesOrderAndDropsHidden(t *testing.T) {
	memories := []*model.Memory{
		{ID: "1", Privacy: model.PrivacyPublic},
		{ID: "2", Privacy: model.PrivacyPrivate, CreatedBy: "alice"},
		{ID: "3", Privacy: model.PrivacyPublic},
	}
	out := Filter(memories, "bob", nil)
	if len(out) != 2 || out[0].ID != "1" || out[1].ID != "3" {
		t.Errorf("expected [1,3] preserving order, got %v", idsOf(out))
	}
}

func idsOf(memories []*model.Memory) []string {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	return ids
}
