package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound = errors.New("batch not found")
	ErrQueueFull   = errors.New("batch queue is full")
	ErrJobBusy     = errors.New("recipient is still pending")
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

type EntryState string

const (
	EntryPending EntryState = "pending"
	EntryOK      EntryState = "ok"
	EntryFailed  EntryState = "failed"
)

type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// ResultView is the client-facing state of one recipient.
type ResultView struct {
	Index       int        `json:"index"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Folio       string     `json:"folio"`
	State       EntryState `json:"state"`
	Error       string     `json:"error,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	URL         string     `json:"url,omitempty"`
	LocalURL    string     `json:"localUrl,omitempty"`
	UploadError string     `json:"uploadError,omitempty"`
}

type JobSnapshot struct {
	ID         string       `json:"id"`
	CourseID   string       `json:"courseId"`
	Status     JobStatus    `json:"status"`
	Progress   Progress     `json:"progress"`
	Results    []ResultView `json:"results"`
	CreatedAt  time.Time    `json:"createdAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// JobEvent is pushed to subscribers after every state change.
type JobEvent struct {
	Type     string      `json:"type"` // result, retry or done
	Status   JobStatus   `json:"status"`
	Progress Progress    `json:"progress"`
	Result   *ResultView `json:"result,omitempty"`
}

// JobRequest describes a batch to queue.
type JobRequest struct {
	CourseID    string
	GeneratedBy string
	Upload      bool
	Input       BatchInput
}

type jobEntry struct {
	result    processor.GenerationResult
	state     EntryState
	uploadErr error
}

// Job is one queued or running batch. Its fields and recipients are private
// copies taken at submission.
type Job struct {
	ID          string
	CourseID    string
	generatedBy string
	upload      bool
	input       BatchInput

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	status     JobStatus
	entries    []jobEntry
	createdAt  time.Time
	finishedAt time.Time
	subs       map[int]chan JobEvent
	nextSub    int
}

type jobTask struct {
	job   *Job
	index int // -1 runs the whole batch
}

// JobManager runs batches on a single worker so recipients, uploads and jobs
// are processed strictly one after another.
type JobManager struct {
	gen      *BatchGenerator
	delivery *DeliveryService
	logger   *zap.Logger

	queue chan jobTask
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobManager returns a manager with room for queueSize pending tasks.
// delivery may be nil when uploads are never requested.
func NewJobManager(gen *BatchGenerator, delivery *DeliveryService, queueSize int, logger *zap.Logger) *JobManager {
	logger = applog.OrNop(logger)
	if queueSize <= 0 {
		queueSize = 64
	}
	return &JobManager{
		gen:      gen,
		delivery: delivery,
		logger:   logger,
		queue:    make(chan jobTask, queueSize),
		stop:     make(chan struct{}),
		jobs:     make(map[string]*Job),
	}
}

// Start launches the worker.
func (m *JobManager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.stop:
				return
			case t := <-m.queue:
				m.process(t)
			}
		}
	}()
	m.logger.Info("Batch worker started")
}

// Shutdown cancels every job and waits for the worker to exit.
func (m *JobManager) Shutdown() {
	m.once.Do(func() {
		m.mu.RLock()
		for _, j := range m.jobs {
			j.cancel()
		}
		m.mu.RUnlock()
		close(m.stop)
	})
	m.wg.Wait()
}

// Submit loads the template and queues the batch. A template that cannot be
// loaded fails here with processor.ErrBatchAborted.
func (m *JobManager) Submit(req JobRequest) (*Job, error) {
	in := req.Input
	in.Fields = append([]processor.Field(nil), in.Fields...)
	in.Recipients = append([]processor.Recipient(nil), in.Recipients...)
	AssignFolios(in.Recipients, time.Now())
	if err := in.prepare(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          uuid.New().String(),
		CourseID:    req.CourseID,
		generatedBy: req.GeneratedBy,
		upload:      req.Upload,
		input:       in,
		ctx:         ctx,
		cancel:      cancel,
		status:      JobQueued,
		entries:     make([]jobEntry, len(in.Recipients)),
		createdAt:   time.Now(),
		subs:        make(map[int]chan JobEvent),
	}
	for i, r := range in.Recipients {
		job.entries[i] = jobEntry{result: processor.GenerationResult{Index: i, Recipient: r}, state: EntryPending}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- jobTask{job: job, index: -1}:
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		cancel()
		return nil, ErrQueueFull
	}

	m.logger.Info("Batch queued",
		zap.String("batchId", job.ID),
		zap.String("courseId", job.CourseID),
		zap.Int("recipients", len(in.Recipients)),
		zap.Bool("upload", job.upload))
	return job, nil
}

func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Cancel stops a batch before its next recipient. Finished results stay.
func (m *JobManager) Cancel(id string) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	job.cancel()

	job.mu.Lock()
	if job.status == JobQueued {
		job.status = JobCancelled
		job.finishedAt = time.Now()
		job.publishLocked(JobEvent{Type: "done"})
	}
	job.mu.Unlock()
	m.logger.Info("Batch cancel requested", zap.String("batchId", id))
	return nil
}

// Retry queues a single recipient to be generated (and uploaded) again.
func (m *JobManager) Retry(id string, index int) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if index < 0 || index >= len(job.entries) {
		job.mu.Unlock()
		return fmt.Errorf("recipient index %d out of range [0,%d)", index, len(job.entries))
	}
	if job.entries[index].state == EntryPending {
		job.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrJobBusy, index)
	}
	prev := job.entries[index]
	job.entries[index].state = EntryPending
	view := job.viewLocked(index)
	job.publishLocked(JobEvent{Type: "retry", Result: &view})
	job.mu.Unlock()

	select {
	case m.queue <- jobTask{job: job, index: index}:
		return nil
	default:
		job.mu.Lock()
		job.entries[index] = prev
		job.mu.Unlock()
		return ErrQueueFull
	}
}

func (m *JobManager) process(t jobTask) {
	if t.index >= 0 {
		m.runRetry(t.job, t.index)
		return
	}
	m.runJob(t.job)
}

func (m *JobManager) runJob(job *Job) {
	job.mu.Lock()
	if job.status == JobCancelled {
		job.mu.Unlock()
		return
	}
	job.status = JobRunning
	job.mu.Unlock()

	start := time.Now()
	streamed := 0
	seq, err := m.gen.Stream(job.ctx, job.input)
	if err == nil {
		for res := range seq {
			m.record(job, res)
			streamed++
		}
	} else {
		m.logger.Error("Batch could not start", zap.String("batchId", job.ID), zap.Error(err))
	}

	// Entries may still be pending here because a retry is queued behind this
	// run; only a stream cut short makes the batch cancelled.
	stopped := err != nil || (job.ctx.Err() != nil && streamed < len(job.input.Recipients))

	job.mu.Lock()
	p := job.progressLocked()
	job.status = JobCompleted
	if stopped {
		job.status = JobCancelled
	}
	job.finishedAt = time.Now()
	job.publishLocked(JobEvent{Type: "done"})
	job.mu.Unlock()

	m.logger.Info("Batch finished",
		zap.String("batchId", job.ID),
		zap.String("status", string(job.status)),
		zap.Int("succeeded", p.Succeeded),
		zap.Int("failed", p.Failed),
		zap.Int("pending", p.Pending),
		zap.Duration("elapsed", time.Since(start)))
}

func (m *JobManager) runRetry(job *Job, index int) {
	res, err := m.gen.Regenerate(context.Background(), job.input, index)
	if err != nil {
		res = processor.GenerationResult{Index: index, Recipient: job.input.Recipients[index], Err: err}
	}
	m.record(job, res)
	m.logger.Info("Recipient retried",
		zap.String("batchId", job.ID),
		zap.Int("index", index),
		zap.Bool("ok", res.OK()))
}

func (m *JobManager) record(job *Job, res processor.GenerationResult) {
	entry := jobEntry{result: res, state: EntryFailed}
	if res.OK() {
		entry.state = EntryOK
		if job.upload && m.delivery != nil {
			ctx := context.WithoutCancel(job.ctx)
			if err := m.delivery.Upload(ctx, job.CourseID, job.ID, job.generatedBy, res.Certificate); err != nil {
				entry.uploadErr = err
				m.logger.Warn("Certificate upload failed",
					zap.String("batchId", job.ID),
					zap.Int("index", res.Index),
					zap.Error(err))
			}
		}
	}

	job.mu.Lock()
	job.entries[res.Index] = entry
	view := job.viewLocked(res.Index)
	job.publishLocked(JobEvent{Type: "result", Result: &view})
	job.mu.Unlock()
}

// Snapshot returns the batch's current state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := JobSnapshot{
		ID:        j.ID,
		CourseID:  j.CourseID,
		Status:    j.status,
		Progress:  j.progressLocked(),
		Results:   make([]ResultView, len(j.entries)),
		CreatedAt: j.createdAt,
	}
	for i := range j.entries {
		s.Results[i] = j.viewLocked(i)
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Done reports whether the batch reached a final status.
func (j *Job) Done() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status == JobCompleted || j.status == JobCancelled
}

func (j *Job) progressLocked() Progress {
	p := Progress{Total: len(j.entries)}
	for _, e := range j.entries {
		switch e.state {
		case EntryOK:
			p.Succeeded++
		case EntryFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	p.Completed = p.Succeeded + p.Failed
	return p
}

func (j *Job) viewLocked(i int) ResultView {
	e := j.entries[i]
	r := e.result.Recipient
	v := ResultView{
		Index: i,
		Name:  r.Name,
		Email: r.Email,
		Folio: r.Folio,
		State: e.state,
	}
	if e.state == EntryFailed && e.result.Err != nil {
		v.Error = e.result.Err.Error()
	}
	if c := e.result.Certificate; c != nil && e.state == EntryOK {
		v.Filename = c.Filename
		v.URL = c.URL
		v.LocalURL = c.LocalURL
	}
	if e.uploadErr != nil {
		v.UploadError = e.uploadErr.Error()
	}
	return v
}

// Subscribe returns a stream of events for the batch. The returned function
// unsubscribes. Slow readers miss events rather than stall the worker.
func (j *Job) Subscribe() (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, 64)
	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, id)
			j.mu.Unlock()
		})
	}
}

func (j *Job) publishLocked(ev JobEvent) {
	ev.Status = j.status
	ev.Progress = j.progressLocked()
	for _, ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Certificates returns the batch's finished certificates in input order.
func (j *Job) Certificates() []processor.GeneratedCertificate {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []processor.GeneratedCertificate
	for _, e := range j.entries {
		if e.state == EntryOK && e.result.Certificate != nil {
			out = append(out, *e.result.Certificate)
		}
	}
	return out
}

// Certificate returns the certificate of one recipient.
func (j *Job) Certificate(index int) (*processor.GeneratedCertificate, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.entries) {
		return nil, fmt.Errorf("recipient index %d out of range [0,%d)", index, len(j.entries))
	}
	e := j.entries[index]
	if e.state != EntryOK || e.result.Certificate == nil {
		return nil, fmt.Errorf("recipient %d has no certificate (%s)", index, e.state)
	}
	c := *e.result.Certificate
	return &c, nil
}

// EmailItems lists every recipient for mailing. role applies to recipients
// without their own.
func (j *Job) EmailItems(role string) []EmailItem {
	j.mu.RLock()
	defer j.mu.RUnlock()
	items := make([]EmailItem, len(j.entries))
	for i := range j.entries {
		items[i] = j.emailItemLocked(i, role)
	}
	return items
}

// EmailItem is EmailItems for one recipient.
func (j *Job) EmailItem(index int, role string) (EmailItem, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.entries) {
		return EmailItem{}, fmt.Errorf("recipient index %d out of range [0,%d)", index, len(j.entries))
	}
	return j.emailItemLocked(index, role), nil
}

func (j *Job) emailItemLocked(i int, role string) EmailItem {
	e := j.entries[i]
	r := e.result.Recipient
	if r.Role != "" {
		role = r.Role
	}
	it := EmailItem{Index: i, Name: r.Name, Email: r.Email, Role: role}
	if e.state == EntryOK && e.result.Certificate != nil {
		it.PDF = e.result.Certificate.Bytes
	}
	return it
}

// Prune forgets finished batches older than maxAge and returns how many.
func (m *JobManager) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.jobs {
		j.mu.RLock()
		old := !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff)
		j.mu.RUnlock()
		if old {
			j.cancel()
			delete(m.jobs, id)
			n++
		}
	}
	return n
}
