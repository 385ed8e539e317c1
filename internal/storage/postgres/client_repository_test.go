package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRepository_GetContact(t *testing.T) {
	client := uuid.New()

	tests := []struct {
		name      string
		setupMock func(pgxmock.PgxPoolIface)
		wantPhone string
		wantEmail string
		wantErr   error
	}{
		{
			name: "phone and email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(getClientContactQuery)).
					WithArgs(pgUUID(client)).
					WillReturnRows(pgxmock.NewRows([]string{"full_name", "email", "phone"}).
						AddRow("Amina Diallo", "amina@example.com", "+22241234567"))
			},
			wantPhone: "+22241234567",
			wantEmail: "amina@example.com",
		},
		{
			name: "no email on file",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(getClientContactQuery)).
					WithArgs(pgUUID(client)).
					WillReturnRows(pgxmock.NewRows([]string{"full_name", "email", "phone"}).
						AddRow("Amina Diallo", nil, "+22241234567"))
			},
			wantPhone: "+22241234567",
		},
		{
			name: "unknown client",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(getClientContactQuery)).
					WithArgs(pgUUID(client)).
					WillReturnRows(pgxmock.NewRows([]string{"full_name", "email", "phone"}))
			},
			wantErr: repo.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			logger := zerolog.Nop()
			r := newClientRepository(mock, &logger)
			tt.setupMock(mock)

			contact, err := r.GetContact(context.Background(), client)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, contact)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "Amina Diallo", contact.Name)
				assert.Equal(t, tt.wantPhone, contact.Phone)
				assert.Equal(t, tt.wantEmail, contact.Email)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
