package availability

import "context"

// Store persists availability records. Implementations must make Create
// conditional on non-existence and Replace a compare-and-swap on Version.
type Store interface {
	Get(ctx context.Context, professionalID, date string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Replace(ctx context.Context, rec *Record, expectedVersion int64) error
	Range(ctx context.Context, professionalID, startDate, endDate string) ([]*Record, error)
}
