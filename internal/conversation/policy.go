package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/guestpilot/internal/intake"
	"github.com/wolfman30/guestpilot/internal/rental"
)

// MatchPolicy decides which existing conversation an inbound message joins.
type MatchPolicy string

const (
	// PolicyTiered applies the strictest rule the record's dates allow:
	// stay window plus Active status when both dates parse, the open-ended
	// half-window when only one parses, identity alone when neither does.
	PolicyTiered MatchPolicy = "tiered"
	// PolicyActiveWindow matches while now is on or before the check-out.
	PolicyActiveWindow MatchPolicy = "active-window"
	// PolicyIdentity matches on guest identity alone.
	PolicyIdentity MatchPolicy = "identity"
)

// ParseMatchPolicy maps a config value to a policy. Empty selects tiered.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyTiered, nil
	case PolicyTiered, PolicyActiveWindow, PolicyIdentity:
		return p, nil
	default:
		return "", fmt.Errorf("conversation: unknown match policy %q", s)
	}
}

// SelectMatch returns the eligible candidate for identity at now, if any.
// Ties go to the most recently updated record, then the highest revision,
// then the greatest ID.
func SelectMatch(policy MatchPolicy, candidates []rental.Conversation, identity string, now time.Time) (rental.Conversation, bool) {
	want := rental.NormalizeIdentity(identity)
	var (
		best  rental.Conversation
		found bool
	)
	for _, c := range candidates {
		if want == "" || rental.NormalizeIdentity(c.GuestEmail) != want {
			continue
		}
		if !eligible(policy, c, now) {
			continue
		}
		if !found || preferred(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func eligible(policy MatchPolicy, c rental.Conversation, now time.Time) bool {
	checkIn, hasIn := intake.ParseStayDate(c.CheckIn)
	checkOut, hasOut := intake.ParseStayDate(c.CheckOut)

	switch policy {
	case PolicyIdentity:
		return true
	case PolicyActiveWindow:
		return hasOut && !now.After(checkOut.WindowEnd())
	}

	switch {
	case hasIn && hasOut:
		return !now.Before(checkIn.WindowStart()) &&
			!now.After(checkOut.WindowEnd()) &&
			strings.EqualFold(strings.TrimSpace(c.Status), rental.StatusActive)
	case hasOut:
		return !now.After(checkOut.WindowEnd())
	case hasIn:
		return !now.Before(checkIn.WindowStart())
	default:
		return true
	}
}

func preferred(a, b rental.Conversation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if a.Revision != b.Revision {
		return a.Revision > b.Revision
	}
	return a.ID > b.ID
}
