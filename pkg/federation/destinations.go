package federation

import "plume/pkg/types"

// Destinations maps recipients to the URLs a broadcast posts to: the shared
// inbox when one is advertised, the actor inbox otherwise. Local recipients
// are dropped and each URL appears once, in first-seen order.
func Destinations(recipients []types.DeliveryTarget) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))

	for _, r := range recipients {
		if r == nil || r.IsLocal() {
			continue
		}
		dest := r.InboxURL()
		if shared, ok := r.SharedInboxURL(); ok && shared != "" {
			dest = shared
		}
		if _, dup := seen[dest]; dup {
			continue
		}
		seen[dest] = struct{}{}
		out = append(out, dest)
	}
	return out
}
