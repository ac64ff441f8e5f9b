package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Upload is one received video. It is never mutated after creation.
type Upload struct {
	FileName string
	Data     []byte
}

func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// Ext returns the lower-cased extension without the dot.
func (u Upload) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(u.FileName), "."))
}

// Waveform is a mono sample sequence at a fixed rate. Stages replace it
// rather than edit Samples in place.
type Waveform struct {
	SampleRate int
	Samples    []float32
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

type State string

const (
	StateIdle        State = "idle"
	StateSizeChecked State = "size_checked"
	StateToolChecked State = "tool_checked"
	StateExtracted   State = "extracted"
	StateEnhanced    State = "enhanced"
	StateRemuxed     State = "remuxed"
	StatePresented   State = "presented"
	StateAborted     State = "aborted"
)

func (s State) Terminal() bool {
	return s == StatePresented || s == StateAborted
}

// Progress is the percentage and label observed by callers.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Result is the finished output, already read into memory so it outlives
// the workspace it was produced in.
type Result struct {
	FileName string        `json:"file_name"`
	MIMEType string        `json:"mime_type"`
	Original []byte        `json:"-"`
	Enhanced []byte        `json:"-"`
	Samples  int           `json:"samples"`
	Elapsed  time.Duration `json:"elapsed"`
}

type Job struct {
	ID         string        `json:"id"`
	FileName   string        `json:"file_name"`
	Size       int64         `json:"size"`
	State      State         `json:"state"`
	Progress   Progress      `json:"progress"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Result     *Result       `json:"result,omitempty"`
	Upload     *Upload       `json:"-"`
}

// JobRecord is the persisted summary of a finished job.
type JobRecord struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	State      State     `json:"state"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Samples    int       `json:"samples,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

func NewJob(upload *Upload) *Job {
	return &Job{
		ID:        uuid.New().String(),
		FileName:  upload.FileName,
		Size:      upload.Size(),
		State:     StateIdle,
		CreatedAt: time.Now(),
		Upload:    upload,
	}
}

func NewJobRecord(job *Job) *JobRecord {
	rec := &JobRecord{
		ID:         job.ID,
		FileName:   job.FileName,
		Size:       job.Size,
		State:      job.State,
		ErrorKind:  job.ErrorKind,
		Error:      job.Error,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = job.CreatedAt
	}
	if job.Result != nil {
		rec.Samples = job.Result.Samples
	}
	if !rec.FinishedAt.IsZero() {
		rec.DurationMS = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	}
	return rec
}

// Clone returns a copy that can be read without holding the store's lock.
// Result and Upload are shared; neither is modified after being set.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
