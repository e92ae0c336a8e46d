package storage

import (
	"context"
	"fmt"
)

// NamespaceCapacityBytes is the hard per-user storage ceiling (1 GiB).
const NamespaceCapacityBytes int64 = 1073741824

// QuotaEstimator decides whether a prospective upload keeps a user's storage
// namespace under the capacity ceiling. Usage is recomputed by enumerating
// the namespace on every check rather than kept as a running counter, so two
// concurrent uploads can both be admitted and jointly overshoot the ceiling.
// That race is accepted.
type QuotaEstimator struct {
	store    ObjectStore
	capacity int64
}

func NewQuotaEstimator(store ObjectStore) *QuotaEstimator {
	return &QuotaEstimator{store: store, capacity: NamespaceCapacityBytes}
}

// Usage returns the total bytes currently stored under the user's namespace.
func (q *QuotaEstimator) Usage(ctx context.Context, userId string) (int64, error) {
	prefix := userId + "/"

	var total int64
	token := ""
	for {
		page, err := q.store.List(ctx, prefix, token)
		if err != nil {
			return 0, fmt.Errorf("error enumerating namespace %v: %w", prefix, err)
		}
		for _, obj := range page.Objects {
			total += obj.Size
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextToken
	}

	return total, nil
}

// Admit reports whether an upload of incomingBytes fits within the user's
// capacity. The upload is admitted only if the resulting total stays strictly
// below the ceiling.
func (q *QuotaEstimator) Admit(ctx context.Context, userId string, incomingBytes int64) (bool, error) {
	used, err := q.Usage(ctx, userId)
	if err != nil {
		return false, err
	}
	return used+incomingBytes < q.capacity, nil
}
