package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type PersonRepository struct {
	db database.Querier
}

func NewPersonRepository(db database.Querier) *PersonRepository {
	return &PersonRepository{db: db}
}

func (r *PersonRepository) Exists(ctx context.Context, personID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM persons WHERE id = $1)`, personID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person: %w", err)
	}
	return exists, nil
}

func (r *PersonRepository) CategoryOf(ctx context.Context, personID string) (models.Category, error) {
	var category string
	err := r.db.QueryRowContext(ctx, `SELECT category FROM persons WHERE id = $1`, personID).Scan(&category)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrPersonNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get person category: %w", err)
	}
	return models.Category(category), nil
}

func (r *PersonRepository) GetByID(ctx context.Context, personID string) (*models.Person, error) {
	p := &models.Person{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, doc_verified
		FROM persons
		WHERE id = $1`, personID).Scan(&p.ID, &p.Name, &p.Category, &p.DocVerified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// Create is used by the seed tool.
func (r *PersonRepository) Create(ctx context.Context, p *models.Person) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, category, doc_verified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, string(p.Category), p.DocVerified)
	return err
}
