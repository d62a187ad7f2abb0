package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carbnb/availability/internal/domain"
)

// UserDirectory reads contact details for booking snapshots.
type UserDirectory interface {
	// GetContactInfo returns the contact for userID, or domain.ErrNotFound.
	GetContactInfo(ctx context.Context, userID string) (domain.Contact, error)
}

type pgUserDirectory struct {
	db db
}

// NewUserDirectory constructs a UserDirectory over the users table.
func NewUserDirectory(db db) UserDirectory {
	return &pgUserDirectory{db: db}
}

func (d *pgUserDirectory) GetContactInfo(ctx context.Context, userID string) (domain.Contact, error) {
	const q = `
		SELECT id, display_name, COALESCE(email, ''), COALESCE(phone, '')
		FROM users
		WHERE id = @id`

	var c domain.Contact
	err := d.db.QueryRow(ctx, q, pgx.NamedArgs{"id": userID}).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("repo.UserDirectory.GetContactInfo: %w", classify(err))
	}
	return c, nil
}
