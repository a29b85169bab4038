package courses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/courses"
	"github.com/aura-academy/backend/pkg/apperr"
)

func TestGetByIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, title, slug FROM courses`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "slug"}))

	c, err := courses.NewRepository(mock).GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestGetByIDDatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, title, slug FROM courses`).WillReturnError(errors.New("conn reset"))

	_, err = courses.NewRepository(mock).GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrDatabase)
}
