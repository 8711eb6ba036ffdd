package institution

import "context"

type Repository interface {
	Upsert(ctx context.Context, inst Institution) (*Institution, error)
	// GetByCode returns nil, nil when absent
	GetByCode(ctx context.Context, code string) (*Institution, error)
	List(ctx context.Context) ([]*Institution, error)
}
