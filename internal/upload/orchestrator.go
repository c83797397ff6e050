package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"
)

// State is a stage of the upload pipeline.
type State int

const (
	StateExtracting State = iota
	StateWriting
	StateKeyGenerated
	StateReplicating
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateExtracting:
		return "extracting"
	case StateWriting:
		return "writing"
	case StateKeyGenerated:
		return "key_generated"
	case StateReplicating:
		return "replicating"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Report statuses.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Options is the immutable configuration consumed by the pipeline.
type Options struct {
	MaxFileSize int64
	TempDir     string
	Bucket      string
	KeyPrefix   string
	// Field is the multipart field holding the file. Defaults to FileField.
	Field string
}

// Response is returned to the client after both backends succeed.
type Response struct {
	ObjectLocator  string `json:"s3_url"`
	ContentAddress string `json:"ipfs_hash"`
	Filename       string `json:"filename"`
	Size           int64  `json:"size"`
}

// Report describes a finished upload attempt, successful or not.
type Report struct {
	Key            string
	Filename       string
	Size           int64
	ObjectLocator  string
	ContentAddress string
	Status         string
	ErrorKind      string
	Stage          State
	Duration       time.Duration
	CreatedAt      time.Time
}

// Recorder persists reports of finished uploads.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

// Service runs the upload pipeline. It is safe for concurrent use.
type Service struct {
	opts       Options
	replicator *Replicator
	recorder   Recorder
	observer   Observer
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithRecorder sets the Recorder that receives every finished upload.
func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithObserver sets the telemetry observer.
func WithObserver(observer Observer) ServiceOption {
	return func(s *Service) {
		s.observer = observer
	}
}

// NewService returns a Service replicating through replicator.
func NewService(opts Options, replicator *Replicator, options ...ServiceOption) *Service {
	if opts.Field == "" {
		opts.Field = FileField
	}

	s := &Service{opts: opts, replicator: replicator, observer: nopObserver{}}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Options returns the configuration the service was built with.
func (s *Service) Options() Options {
	return s.opts
}

// attempt tracks one pass through the pipeline. States only move forward.
type attempt struct {
	state  State
	report Report
	start  time.Time
}

func (a *attempt) advance(next State) {
	if next <= a.state {
		panic(fmt.Sprintf("upload: invalid transition %s -> %s", a.state, next))
	}
	slog.Debug("Upload state", "from", a.state, "to", next, "key", a.report.Key)
	a.state = next
}

// Upload extracts the file field from mr, stages it under the size cap,
// replicates it to both backends and returns the combined response. The
// staging file is removed before Upload returns on every path.
func (s *Service) Upload(ctx context.Context, mr *multipart.Reader) (Response, error) {
	a := &attempt{state: StateExtracting, start: time.Now()}

	resp, err := s.run(ctx, a, mr)
	if err != nil {
		a.report.Stage = a.state
		a.advance(StateFailed)
		a.report.Status = StatusFailed
		if a.report.ObjectLocator != "" || a.report.ContentAddress != "" {
			a.report.Status = StatusPartial
		}
		a.report.ErrorKind = Kind(err)
	} else {
		a.advance(StateSucceeded)
		a.report.Stage = a.state
		a.report.Status = StatusSucceeded
	}

	s.finish(ctx, a)
	return resp, err
}

func (s *Service) run(ctx context.Context, a *attempt, mr *multipart.Reader) (Response, error) {
	part, filename, err := ExtractFile(mr, s.opts.Field)
	if err != nil {
		if errors.Is(err, ErrNoFile) {
			return Response{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, &ReplicationError{Err: ctxErr}
		}
		return Response{}, classifyReadError(err, s.opts.MaxFileSize)
	}
	defer part.Close()

	a.report.Filename = filename
	a.advance(StateWriting)

	tf, err := CreateTransient(s.opts.TempDir)
	if err != nil {
		return Response{}, &IOError{Op: "create", Err: err}
	}
	defer tf.Release()

	size, err := WriteBounded(ctx, tf, part, s.opts.MaxFileSize)
	a.report.Size = size
	if err != nil {
		return Response{}, err
	}

	key := NewKey(filename, s.opts.KeyPrefix).String()
	a.report.Key = key
	a.advance(StateKeyGenerated)

	a.advance(StateReplicating)
	outcome, err := s.replicator.Replicate(ctx, tf.Path(), s.opts.Bucket, key)
	a.report.ObjectLocator = outcome.ObjectLocator
	a.report.ContentAddress = outcome.ContentAddress
	if err != nil {
		return Response{}, err
	}

	slog.Info("File uploaded successfully",
		"key", key,
		"size", size,
		"s3_url", outcome.ObjectLocator,
		"ipfs_hash", outcome.ContentAddress,
	)

	return Response{
		ObjectLocator:  outcome.ObjectLocator,
		ContentAddress: outcome.ContentAddress,
		Filename:       filename,
		Size:           size,
	}, nil
}

// finish emits telemetry and hands the report to the recorder. Recording
// uses a context detached from the request so client disconnects are
// still recorded.
func (s *Service) finish(ctx context.Context, a *attempt) {
	a.report.Duration = time.Since(a.start)
	a.report.CreatedAt = a.start.UTC()

	s.observer.ObserveUpload(a.report.ErrorKind, a.report.Size)

	if a.report.Status != StatusSucceeded {
		slog.Warn("Upload failed",
			"kind", a.report.ErrorKind,
			"stage", a.report.Stage,
			"status", a.report.Status,
			"filename", a.report.Filename,
		)
	}

	if s.recorder == nil {
		return
	}

	if err := s.recorder.Record(context.WithoutCancel(ctx), a.report); err != nil {
		slog.Warn("Failed to record upload", "key", a.report.Key, "err", err)
	}
}
