// Package notify delivers operator alerts about videos the engine gave up on.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/pkg/queue"
)

// EmailTypeTerminalFailure tags terminal failure alerts in email_logs.
const EmailTypeTerminalFailure = "video_terminal_failure"

// TerminalFailure describes a video whose retries are exhausted.
type TerminalFailure struct {
	VideoID     uuid.UUID
	VideoTitle  string
	CourseTitle string
	ExternalID  string
	ErrorCode   string
	ErrorText   string
	UploadedAt  time.Time
	AdminURL    string
}

// EmailEnqueuer hands a rendered email to the worker.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueNotifier renders terminal failure alerts and queues them for delivery.
type QueueNotifier struct {
	queue      EmailEnqueuer
	recipients []string
	logger     *zap.Logger
}

// NewQueueNotifier creates a notifier sending to every address in recipients.
func NewQueueNotifier(q EmailEnqueuer, recipients []string, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{queue: q, recipients: recipients, logger: logger}
}

// SendTerminalFailure queues one email per recipient. It stops at the first enqueue error.
func (n *QueueNotifier) SendTerminalFailure(ctx context.Context, f TerminalFailure) error {
	if len(n.recipients) == 0 {
		n.logger.Warn("terminal failure alert has no recipients", zap.String("video_id", f.VideoID.String()))
		return nil
	}
	subject, body, err := RenderTerminalFailure(f)
	if err != nil {
		return err
	}
	videoID := f.VideoID
	for _, to := range n.recipients {
		err := n.queue.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      EmailTypeTerminalFailure,
			VideoID:        &videoID,
			RecipientEmail: to,
			Subject:        subject,
			BodyHTML:       body,
		})
		if err != nil {
			return fmt.Errorf("enqueue alert for %s: %w", to, err)
		}
	}
	n.logger.Info("terminal failure alert queued",
		zap.String("video_id", f.VideoID.String()),
		zap.Int("recipients", len(n.recipients)),
	)
	return nil
}

var failureTemplate = template.Must(template.New("terminal_failure").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 560px; margin: 40px auto; background: white; border-radius: 12px; overflow: hidden;">
    <div style="background: #b91c1c; padding: 24px;">
      <h1 style="color: white; margin: 0; font-size: 20px;">Video processing failed</h1>
    </div>
    <div style="padding: 24px; color: #1e293b; font-size: 14px; line-height: 1.6;">
      <p>Automatic retries are exhausted for <strong>{{.VideoTitle}}</strong>{{if .CourseTitle}} in <strong>{{.CourseTitle}}</strong>{{end}}.</p>
      <table style="border-collapse: collapse;">
        <tr><td style="padding: 4px 12px 4px 0; color: #64748b;">Video ID</td><td>{{.VideoID}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #64748b;">External ID</td><td>{{.ExternalID}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #64748b;">Error code</td><td>{{if .ErrorCode}}{{.ErrorCode}}{{else}}n/a{{end}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #64748b;">Error</td><td>{{if .ErrorText}}{{.ErrorText}}{{else}}n/a{{end}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #64748b;">Uploaded</td><td>{{.UploadedAt.UTC.Format "2006-01-02 15:04 MST"}}</td></tr>
      </table>
      {{if .AdminURL}}<p><a href="{{.AdminURL}}" style="color: #6366f1;">Open in admin</a></p>{{end}}
    </div>
  </div>
</body>
</html>`))

// RenderTerminalFailure returns the subject and HTML body of an alert.
func RenderTerminalFailure(f TerminalFailure) (string, string, error) {
	title := strings.TrimSpace(f.VideoTitle)
	if title == "" {
		title = f.VideoID.String()
	}
	var buf bytes.Buffer
	if err := failureTemplate.Execute(&buf, f); err != nil {
		return "", "", fmt.Errorf("render alert: %w", err)
	}
	return "Video processing failed: " + title, buf.String(), nil
}
