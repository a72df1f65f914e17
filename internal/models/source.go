package models

import "context"

// NewsSource searches one provider for articles matching a phrase. Results
// come back in the provider's own relevance order; Index is assigned later.
type NewsSource interface {
	SearchArticles(ctx context.Context, phrase string, limit int) ([]Candidate, error)
	GetName() string
}
