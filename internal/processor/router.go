// Package processor holds the per-record pipeline stages between decoding
// and delivery.
package processor

import "claimant-consumer/internal/domain"

// SplitActions separates deletes from inserts and updates, keeping order.
func SplitActions(extracts []domain.Processed[domain.Extract]) (deletes, upserts []domain.Processed[domain.Extract]) {
	for _, e := range extracts {
		if e.Value.Action == domain.ActionDelete {
			deletes = append(deletes, e)
		} else {
			upserts = append(upserts, e)
		}
	}
	return deletes, upserts
}
