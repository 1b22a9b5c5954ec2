package hospital

import "context"

type Repository interface {
	// Upsert returns the hospital with the given slug, creating it with name
	// when absent.
	Upsert(ctx context.Context, name, slug string) (*Hospital, error)
}
