package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Provider is the local copy of a provider profile owned by account management.
type Provider struct {
	ID        string `json:"provider_id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

var ErrProviderIDRequired = errors.New("provider id is required")

type ProviderRepository struct{}

func NewProviderRepository() *ProviderRepository {
	return &ProviderRepository{}
}

// Upsert stores the latest profile; later events overwrite earlier ones.
func (r *ProviderRepository) Upsert(ctx context.Context, tx pgx.Tx, p Provider) error {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return ErrProviderIDRequired
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO providers (id, name, specialty)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			specialty = EXCLUDED.specialty,
			updated_at = now()
	`, id, strings.TrimSpace(p.Name), strings.TrimSpace(p.Specialty))
	return err
}
