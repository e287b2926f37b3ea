package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobRequest(t *testing.T, names ...string) JobRequest {
	return JobRequest{
		CourseID: "curso-1",
		Input: BatchInput{
			Template:   templatePDF(t, 1),
			Fields:     []processor.Field{nameField()},
			Recipients: recipients(names...),
		},
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	job, err := m.Submit(jobRequest(t, "Ana", "", "Luis"))
	require.NoError(t, err)
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	m.Start()
	defer m.Shutdown()
	waitDone(t, job)

	snap := job.Snapshot()
	assert.Equal(t, JobCompleted, snap.Status)
	assert.Equal(t, Progress{Total: 3, Completed: 3, Succeeded: 2, Failed: 1}, snap.Progress)
	require.Len(t, snap.Results, 3)
	assert.Equal(t, EntryOK, snap.Results[0].State)
	assert.Equal(t, EntryFailed, snap.Results[1].State)
	assert.NotEmpty(t, snap.Results[1].Error)
	assert.NotEmpty(t, snap.Results[0].Folio)
	assert.NotNil(t, snap.FinishedAt)

	assert.Len(t, job.Certificates(), 2)
	cert, err := job.Certificate(2)
	require.NoError(t, err)
	assert.Equal(t, "Constancia_Luis.pdf", cert.Filename)
	_, err = job.Certificate(1)
	assert.Error(t, err)

	var last JobEvent
	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			last = ev
		default:
		}
		return last.Type == "done"
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, last.Progress.Completed)
}

func TestJobSubmitCopiesInput(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	req := jobRequest(t, "Ana")
	job, err := m.Submit(req)
	require.NoError(t, err)

	req.Input.Recipients[0].Name = "Changed"
	req.Input.Fields[0].Key = "CORREO"
	assert.Equal(t, "Ana", job.Snapshot().Results[0].Name)
	assert.Empty(t, req.Input.Recipients[0].Folio)
	assert.NotEmpty(t, job.Snapshot().Results[0].Folio)
}

func TestJobSubmitRejectsBadTemplate(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	req := jobRequest(t, "Ana")
	req.Input.Template = []byte("nope")
	_, err := m.Submit(req)
	assert.ErrorIs(t, err, processor.ErrBatchAborted)
}

func TestJobCancelWhileQueued(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	job, err := m.Submit(jobRequest(t, "Ana", "Luis"))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(job.ID))
	assert.True(t, job.Done())

	m.Start()
	defer m.Shutdown()
	// The worker drops the cancelled job without generating anything.
	time.Sleep(50 * time.Millisecond)
	snap := job.Snapshot()
	assert.Equal(t, JobCancelled, snap.Status)
	assert.Equal(t, 2, snap.Progress.Pending)

	assert.ErrorIs(t, m.Cancel("missing"), ErrJobNotFound)
}

func TestJobQueueFull(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 1, nil)
	_, err := m.Submit(jobRequest(t, "Ana"))
	require.NoError(t, err)
	_, err = m.Submit(jobRequest(t, "Luis"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobRetry(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	m.Start()
	defer m.Shutdown()

	job, err := m.Submit(jobRequest(t, "Ana", ""))
	require.NoError(t, err)
	waitDone(t, job)
	folio := job.Snapshot().Results[0].Folio

	require.NoError(t, m.Retry(job.ID, 0))
	require.Eventually(t, func() bool {
		return job.Snapshot().Results[0].State == EntryOK
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, folio, job.Snapshot().Results[0].Folio)

	require.NoError(t, m.Retry(job.ID, 1))
	require.Eventually(t, func() bool {
		return job.Snapshot().Results[1].State == EntryFailed
	}, 5*time.Second, 5*time.Millisecond)

	assert.Error(t, m.Retry(job.ID, 9))
}

func pacedGenerator() *BatchGenerator {
	return NewBatchGenerator(processor.NewRenderer(nil, nil), 100*time.Millisecond, nil)
}

func nextEvent(t *testing.T, events <-chan JobEvent, typ string) JobEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestJobRetryDuringRunStillCompletes(t *testing.T) {
	m := NewJobManager(pacedGenerator(), nil, 4, nil)
	job, err := m.Submit(jobRequest(t, "", "Ana", "Luis", "Eva"))
	require.NoError(t, err)
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	m.Start()
	defer m.Shutdown()

	first := nextEvent(t, events, "result")
	require.Equal(t, EntryFailed, first.Result.State)
	require.NoError(t, m.Retry(job.ID, 0))

	done := nextEvent(t, events, "done")
	assert.Equal(t, JobCompleted, done.Status)

	require.Eventually(t, func() bool {
		return job.Snapshot().Progress.Pending == 0
	}, 5*time.Second, 5*time.Millisecond)
	snap := job.Snapshot()
	assert.Equal(t, JobCompleted, snap.Status)
	assert.Equal(t, Progress{Total: 4, Completed: 4, Succeeded: 3, Failed: 1}, snap.Progress)
}

func TestJobCancelDuringRun(t *testing.T) {
	m := NewJobManager(pacedGenerator(), nil, 4, nil)
	job, err := m.Submit(jobRequest(t, "Ana", "Luis", "Eva", "Sofía"))
	require.NoError(t, err)
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	m.Start()
	defer m.Shutdown()

	nextEvent(t, events, "result")
	require.NoError(t, m.Cancel(job.ID))

	done := nextEvent(t, events, "done")
	assert.Equal(t, JobCancelled, done.Status)
	assert.Positive(t, job.Snapshot().Progress.Pending)
}

func TestJobUploadsCertificates(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	store := storage.NewMemoryStore("https://cdn.test")
	delivery := NewDeliveryService(db, store, dir, "http://localhost:8080", nil)

	m := NewJobManager(newGenerator(), delivery, 4, nil)
	m.Start()
	defer m.Shutdown()

	req := jobRequest(t, "Ana")
	req.Upload = true
	req.GeneratedBy = "tester"
	job, err := m.Submit(req)
	require.NoError(t, err)
	waitDone(t, job)

	view := job.Snapshot().Results[0]
	assert.Equal(t, EntryOK, view.State)
	assert.Empty(t, view.UploadError)
	assert.Contains(t, view.URL, "https://cdn.test/certificates/curso-1/")
	assert.Contains(t, view.LocalURL, "/api/v1/fallback/")

	var rows []models.GeneratedCertificate
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, job.ID, rows[0].BatchID)
	assert.Equal(t, "tester", rows[0].GeneratedBy)
	assert.Equal(t, view.Folio, rows[0].Folio)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJobUploadFailureKeepsCertificate(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	store := storage.NewMemoryStore("")
	store.FailUploads = true
	delivery := NewDeliveryService(db, store, dir, "", nil)

	m := NewJobManager(newGenerator(), delivery, 4, nil)
	m.Start()
	defer m.Shutdown()

	req := jobRequest(t, "Ana")
	req.Upload = true
	job, err := m.Submit(req)
	require.NoError(t, err)
	waitDone(t, job)

	view := job.Snapshot().Results[0]
	assert.Equal(t, EntryOK, view.State)
	assert.NotEmpty(t, view.UploadError)
	assert.Empty(t, view.URL)
	require.NotEmpty(t, view.LocalURL)

	path, err := delivery.FallbackPath(filepath.Base(view.LocalURL))
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestJobEmailItemsAndPrune(t *testing.T) {
	m := NewJobManager(newGenerator(), nil, 4, nil)
	m.Start()
	defer m.Shutdown()

	req := jobRequest(t, "Ana", "")
	req.Input.Recipients[0].Role = "Ponente"
	job, err := m.Submit(req)
	require.NoError(t, err)
	waitDone(t, job)

	items := job.EmailItems("Participante")
	require.Len(t, items, 2)
	assert.Equal(t, "Ponente", items[0].Role)
	assert.NotEmpty(t, items[0].PDF)
	assert.Equal(t, "Participante", items[1].Role)
	assert.Empty(t, items[1].PDF)

	assert.Equal(t, 0, m.Prune(time.Hour))
	assert.Equal(t, 1, m.Prune(0))
	_, err = m.Get(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
