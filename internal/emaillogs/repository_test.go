package emaillogs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/emaillogs"
	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/apperr"
)

func TestInsertSetsIDAndCreatedAt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	videoID := uuid.New()
	created := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO email_logs`).
		WithArgs(pgxmock.AnyArg(), "video_terminal_failure", "ops@example.com", pgxmock.AnyArg(), models.EmailLogStatusSent, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, created))

	el := &models.EmailLog{
		VideoID:        &videoID,
		EmailType:      "video_terminal_failure",
		RecipientEmail: "ops@example.com",
		Subject:        "Video processing failed: Intro",
		Status:         models.EmailLogStatusSent,
	}
	require.NoError(t, emaillogs.NewRepository(mock).Insert(context.Background(), el))
	assert.Equal(t, id, el.ID)
	assert.Equal(t, created, el.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByVideoErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM email_logs\s+WHERE video_id = \$1\s+ORDER BY created_at DESC`).
		WillReturnError(errors.New("conn reset"))

	_, err = emaillogs.NewRepository(mock).ListByVideo(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrDatabase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerListByVideo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectQuery(`FROM email_logs`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "video_id", "email_type", "recipient_email", "subject", "status", "sent_at", "error_message", "created_at"}))

	r := gin.New()
	r.GET("/admin/videos/:id/emails", emaillogs.NewHandler(emaillogs.NewRepository(mock)).ListByVideo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/videos/"+uuid.NewString()+"/emails", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/videos/nope/emails", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
