package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/pkg/queue"
)

type recordingQueue struct {
	payloads []queue.EmailPayload
	err      error
}

func (q *recordingQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func sampleFailure() TerminalFailure {
	return TerminalFailure{
		VideoID:     uuid.MustParse("6f1c1f43-5f3b-4c52-9d8e-1e0e6a7b2c11"),
		VideoTitle:  "Lesson <1>",
		CourseTitle: "Distributed Systems",
		ExternalID:  "ext-42",
		ErrorCode:   "ERR_NON_VIDEO",
		ErrorText:   "file is not a video",
		UploadedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		AdminURL:    "https://admin.example.com/admin/videos/6f1c1f43-5f3b-4c52-9d8e-1e0e6a7b2c11",
	}
}

func TestRenderTerminalFailure(t *testing.T) {
	subject, body, err := RenderTerminalFailure(sampleFailure())
	require.NoError(t, err)
	assert.Equal(t, "Video processing failed: Lesson <1>", subject)
	assert.Contains(t, body, "Lesson &lt;1&gt;")
	assert.Contains(t, body, "ext-42")
	assert.Contains(t, body, "ERR_NON_VIDEO")
	assert.Contains(t, body, "2026-03-01 09:30 UTC")
	assert.Contains(t, body, "https://admin.example.com/admin/videos/")
}

func TestRenderTerminalFailureFallsBackToID(t *testing.T) {
	f := sampleFailure()
	f.VideoTitle = ""
	f.ErrorCode = ""
	subject, body, err := RenderTerminalFailure(f)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(subject, f.VideoID.String()))
	assert.Contains(t, body, "n/a")
}

func TestQueueNotifierEnqueuesPerRecipient(t *testing.T) {
	q := &recordingQueue{}
	n := NewQueueNotifier(q, []string{"ops@example.com", "lead@example.com"}, nil)

	require.NoError(t, n.SendTerminalFailure(context.Background(), sampleFailure()))
	require.Len(t, q.payloads, 2)
	assert.Equal(t, EmailTypeTerminalFailure, q.payloads[0].EmailType)
	assert.Equal(t, "lead@example.com", q.payloads[1].RecipientEmail)
	require.NotNil(t, q.payloads[0].VideoID)
	assert.Equal(t, sampleFailure().VideoID, *q.payloads[0].VideoID)
}

func TestQueueNotifierWithoutRecipientsIsNoop(t *testing.T) {
	q := &recordingQueue{}
	require.NoError(t, NewQueueNotifier(q, nil, nil).SendTerminalFailure(context.Background(), sampleFailure()))
	assert.Empty(t, q.payloads)
}

func TestQueueNotifierSurfacesEnqueueError(t *testing.T) {
	q := &recordingQueue{err: errors.New("redis down")}
	err := NewQueueNotifier(q, []string{"ops@example.com"}, nil).SendTerminalFailure(context.Background(), sampleFailure())
	assert.ErrorContains(t, err, "redis down")
}

func TestMailerDevModeDoesNotSend(t *testing.T) {
	m := NewMailer(SMTPConfig{}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("dev mode must not dial SMTP")
		return nil
	}
	assert.NoError(t, m.SendHTML("a@example.com", "hi", "<p>x</p>"))
}

func TestMailerBuildsMessage(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, User: "u", Pass: "p", From: "noreply@example.com", FromName: "Aura Academy"}, nil)
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@example.com", from)
		return nil
	}
	require.NoError(t, m.SendHTML("ops@example.com", "Video processing failed", "<p>body</p>"))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "From: Aura Academy <noreply@example.com>\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>body</p>")
}

func TestMailerWrapsSendError(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "x@example.com"}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("451 try later") }
	assert.ErrorContains(t, m.SendHTML("ops@example.com", "s", "b"), "451 try later")
}
