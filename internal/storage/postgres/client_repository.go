package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.ClientDirectory = (*ClientRepository)(nil)

// ClientRepository reads recipient contacts from the clinic's clients table.
type ClientRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewClientRepository creates a new instance of the ClientRepository.
func NewClientRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *ClientRepository {
	return newClientRepository(pool, logger)
}

func newClientRepository(db DBTX, logger *zerolog.Logger) *ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger.With().Str("layer", "postgres_client_repository").Logger(),
	}
}

// GetContact returns the name, email and phone of a client.
func (r *ClientRepository) GetContact(ctx context.Context, clientID uuid.UUID) (*model.Contact, error) {
	var (
		name         string
		email, phone pgtype.Text
	)
	err := r.db.QueryRow(ctx, getClientContactQuery, pgUUID(clientID)).Scan(&name, &email, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn().Stringer("client_id", clientID).Msg("client not found")
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Stringer("client_id", clientID).Msg("cannot get client contact")
		return nil, persistenceErr("GetClientContact", err)
	}

	return &model.Contact{
		Name:  name,
		Email: email.String,
		Phone: phone.String,
	}, nil
}
