// Package privacy implements the sharing/visibility filter (§4.13) applied
// in the retrieval pipeline before ranking.
package privacy

import "github.com/agentmem/agentmem/internal/model"

// MembershipOracle answers whether userID is a team member for the purpose
// of the Team privacy tier. Per Open Question (c), the default oracle
// treats every authenticated caller as a team member; a host may plug in a
// real membership check.
type MembershipOracle func(userID string) bool

// AllMembers is the default oracle: every non-empty user id is a member.
func AllMembers(userID string) bool { return userID != "" }

// Visible reports whether m is visible to userID under the given oracle:
// Public is always visible; Private requires created_by == userID; Team
// requires oracle(userID).
func Visible(m *model.Memory, userID string, oracle MembershipOracle) bool {
	switch m.Privacy {
	case model.PrivacyPublic:
		return true
	case model.PrivacyPrivate:
		return m.CreatedBy == userID
	case model.PrivacyTeam:
		if oracle == nil {
			oracle = AllMembers
		}
		return oracle(userID)
	default:
		return m.CreatedBy == userID
	}
}

// Filter drops memories not visible to userID, preserving order.
func Filter(memories []*model.Memory, userID string, oracle MembershipOracle) []*model.Memory {
	out := make([]*model.Memory, 0, len(memories))
	for _, m := range memories {
		if Visible(m, userID, oracle) {
			out = append(out, m)
		}
	}
	return out
}
