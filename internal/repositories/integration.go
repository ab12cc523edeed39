package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/musictime/internal/models"
	"github.com/desertthunder/musictime/internal/shared"
)

const integrationColumns = `id, sequence, provider, status, access_token, refresh_token, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// IntegrationRepository persists [models.Integration] records.
type IntegrationRepository struct {
	db *sql.DB
}

// NewIntegrationRepository creates a new [IntegrationRepository] with the given database connection
func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// Create appends an integration record with a generated ID and the next sequence number.
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	if err := integration.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertIntegration(ctx, tx, integration); err != nil {
		return err
	}

	return tx.Commit()
}

func insertIntegration(ctx context.Context, tx *sql.Tx, integration *models.Integration) error {
	sequence, err := nextSequenceTx(ctx, tx, "integrations")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	integration.SetID(id)
	integration.SetSequence(sequence)

	query := `
		INSERT INTO integrations (id, sequence, provider, status, access_token, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		id, sequence, integration.Provider(), integration.Status(),
		integration.AccessToken(), integration.RefreshToken(),
		integration.CreatedAt(), integration.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert integration: %w", err)
	}

	return nil
}

// Get retrieves an integration by ID, excluding removed records.
func (r *IntegrationRepository) Get(ctx context.Context, id string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ? AND deleted_at IS NULL`

	integration, err := scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: integration %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query integration: %w", err)
	}

	return integration, nil
}

// List retrieves all stored integrations in insertion order.
//
// Supported criteria: "provider" (case-insensitive match).
func (r *IntegrationRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE deleted_at IS NULL`
	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND LOWER(provider) = LOWER(?)"
		args = append(args, provider)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return integrations, nil
}

// ActiveSpotify returns the authoritative Spotify integration: the last active Spotify record
// in insertion order. Returns nil, nil when there is none.
func (r *IntegrationRepository) ActiveSpotify(ctx context.Context) (*models.Integration, error) {
	integrations, err := r.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	return models.LastActive(integrations, models.ProviderSpotify), nil
}

// ClearSpotify removes every Spotify record regardless of status and returns how many were removed.
func (r *IntegrationRepository) ClearSpotify(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE integrations
		SET deleted_at = ?
		WHERE LOWER(provider) = ? AND deleted_at IS NULL
	`, time.Now(), models.ProviderSpotify)
	if err != nil {
		return 0, fmt.Errorf("failed to clear spotify integrations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(rows), nil
}

// ReplaceFromRemote swaps the stored Spotify records for the ones derived from a freshly fetched
// backend user, in a single transaction. Records of other providers are left alone.
func (r *IntegrationRepository) ReplaceFromRemote(ctx context.Context, user *models.RemoteUser) error {
	if user == nil {
		return fmt.Errorf("%w: remote user is required", shared.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE integrations
		SET deleted_at = ?
		WHERE LOWER(provider) = ? AND deleted_at IS NULL
	`, time.Now(), models.ProviderSpotify)
	if err != nil {
		return fmt.Errorf("failed to clear spotify integrations: %w", err)
	}

	for _, integration := range user.ProviderIntegrations(models.ProviderSpotify) {
		if err := insertIntegration(ctx, tx, integration); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit integrations: %w", err)
	}

	return nil
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		id           string
		sequence     int
		provider     string
		status       string
		accessToken  string
		refreshToken string
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &provider, &status, &accessToken, &refreshToken, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	integration := models.NewIntegration(sequence, provider, status, accessToken, refreshToken)
	integration.SetID(id)
	integration.SetCreatedAt(createdAt)
	integration.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		integration.SetDeletedAt(&deletedAt.Time)
	}

	return integration, nil
}
