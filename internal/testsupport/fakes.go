package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/notify"
	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/pkg/apperr"
)

// Courses is an in-memory course lookup.
type Courses struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Course
}

// NewCourses creates a lookup seeded with courses.
func NewCourses(courses ...models.Course) *Courses {
	c := &Courses{rows: make(map[uuid.UUID]models.Course)}
	for _, course := range courses {
		c.rows[course.ID] = course
	}
	return c
}

func (c *Courses) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	course, ok := c.rows[id]
	if !ok {
		return nil, nil
	}
	return &course, nil
}

// Response is one scripted provider answer.
type Response struct {
	Status provider.Status
	Err    error
}

// FakeProvider answers GetStatus from per-video scripts. The last scripted
// response of a video repeats once the earlier ones are used up.
type FakeProvider struct {
	mu        sync.Mutex
	scripts   map[string][]Response
	calls     map[string]int
	callLog   []string
	deleted   []string
	copies    []string
	DeleteErr error
	CopyErr   error

	// NextUID is returned by CopyFromURL.
	NextUID string
}

// NewFakeProvider creates a provider with no scripted videos.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{scripts: make(map[string][]Response), calls: make(map[string]int)}
}

// SetStatus makes every later GetStatus for externalID return st.
func (p *FakeProvider) SetStatus(externalID string, st provider.Status) {
	p.Script(externalID, Response{Status: st})
}

// Script replaces the responses for externalID.
func (p *FakeProvider) Script(externalID string, responses ...Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[externalID] = responses
}

func (p *FakeProvider) GetStatus(_ context.Context, externalID string) (*provider.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[externalID]++
	p.callLog = append(p.callLog, externalID)
	script := p.scripts[externalID]
	if len(script) == 0 {
		return nil, apperr.Wrap(apperr.ErrExternalService, "get status", "no scripted status for "+externalID, nil)
	}
	r := script[0]
	if len(script) > 1 {
		p.scripts[externalID] = script[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	st := r.Status
	return &st, nil
}

func (p *FakeProvider) DeleteVideo(_ context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	p.deleted = append(p.deleted, externalID)
	return nil
}

func (p *FakeProvider) CopyFromURL(_ context.Context, sourceURL string, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CopyErr != nil {
		return "", p.CopyErr
	}
	p.copies = append(p.copies, sourceURL)
	if p.NextUID == "" {
		return fmt.Sprintf("copy-%d", len(p.copies)), nil
	}
	return p.NextUID, nil
}

// Calls returns how many GetStatus calls were made for externalID.
func (p *FakeProvider) Calls(externalID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[externalID]
}

// CallLog returns the external ids of every GetStatus call, in call order.
func (p *FakeProvider) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.callLog...)
}

// TotalCalls returns the number of GetStatus calls across all videos.
func (p *FakeProvider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// Deleted returns the external ids passed to DeleteVideo.
func (p *FakeProvider) Deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

// Copies returns the source URLs passed to CopyFromURL.
func (p *FakeProvider) Copies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.copies...)
}

// FakeClock advances only when slept on.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeClock creates a clock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and moves the clock forward by it without blocking.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// RecordingNotifier keeps every terminal failure it is asked to send.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.TerminalFailure
	Err  error
}

func (n *RecordingNotifier) SendTerminalFailure(_ context.Context, f notify.TerminalFailure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, f)
	return n.Err
}

// Sent returns the notifications received so far.
func (n *RecordingNotifier) Sent() []notify.TerminalFailure {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.TerminalFailure(nil), n.sent...)
}

// RecordingPublisher keeps every published video status.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.Video
}

func (p *RecordingPublisher) PublishVideoStatus(_ context.Context, v *models.Video) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *v)
	return nil
}

// Events returns the published snapshots.
func (p *RecordingPublisher) Events() []models.Video {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Video(nil), p.events...)
}
