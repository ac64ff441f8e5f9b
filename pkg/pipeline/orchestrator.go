package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"voiceboost/pkg/metrics"
	"voiceboost/pkg/models"
)

// Transcoder demuxes and remuxes media with an external tool.
type Transcoder interface {
	Available() error
	ExtractAudio(ctx context.Context, videoPath, audioPath string, sampleRate int) error
	Remux(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Enhancer restores speech in a waveform without changing its sample rate.
type Enhancer interface {
	Enhance(ctx context.Context, w models.Waveform) (models.Waveform, error)
}

var allowedExt = map[string]string{
	"mp4": "video/mp4",
	"mov": "video/quicktime",
}

// AllowedExtensions lists the accepted upload extensions.
func AllowedExtensions() []string {
	return []string{"mp4", "mov"}
}

// OutputName is the name of the enhanced file for an upload named name.
func OutputName(name string) string {
	return "enhanced_" + filepath.Base(name)
}

// MIMEType returns the content type for an upload extension.
func MIMEType(ext string) string {
	if t, ok := allowedExt[strings.ToLower(ext)]; ok {
		return t
	}
	return "application/octet-stream"
}

type Options struct {
	MaxUploadBytes int64
	SampleRate     int
	EnhanceTimeout time.Duration
	WorkspaceRoot  string
}

type Orchestrator struct {
	opts       Options
	transcoder Transcoder
	enhancer   Enhancer
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewOrchestrator(opts Options, transcoder Transcoder, enhancer Enhancer, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		opts:       opts,
		transcoder: transcoder,
		enhancer:   enhancer,
		metrics:    m,
		logger:     logger,
	}
}

// Preflight runs the checks that must pass before a workspace is created:
// upload size and type, then transcoder availability.
func (o *Orchestrator) Preflight(upload *models.Upload) error {
	if err := o.checkUpload(upload); err != nil {
		return err
	}
	if err := o.checkTools(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) checkUpload(upload *models.Upload) *Error {
	size := upload.Size()
	switch {
	case size == 0:
		return newError(KindRejected, models.StateSizeChecked, ErrEmptyUpload,
			"The uploaded file is empty.")
	case size > o.opts.MaxUploadBytes:
		return newError(KindRejected, models.StateSizeChecked,
			fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, o.opts.MaxUploadBytes),
			"File too large. Maximum size is %d MB. Your file is %.1f MB",
			o.opts.MaxUploadBytes/(1024*1024), float64(size)/(1024*1024))
	}
	if _, ok := allowedExt[upload.Ext()]; !ok {
		return newError(KindRejected, models.StateSizeChecked,
			fmt.Errorf("%w: %q", ErrUnsupportedType, upload.FileName),
			"Unsupported file type. Please upload an MP4 or MOV video.")
	}
	return nil
}

func (o *Orchestrator) checkTools() *Error {
	if err := o.transcoder.Available(); err != nil {
		return newError(KindTool, models.StateToolChecked, err,
			"FFmpeg is not installed. This is required for video processing.")
	}
	return nil
}

// Run takes one upload through every stage. The workspace is removed before
// Run returns; the returned Result holds the original and enhanced videos in
// memory.
func (o *Orchestrator) Run(ctx context.Context, upload *models.Upload, report ProgressFunc) (*models.Result, error) {
	m := newMachine(report)
	logger := o.logger.With(zap.String("file", upload.FileName), zap.Int64("size", upload.Size()))
	start := time.Now()

	fail := func(err *Error) (*models.Result, error) {
		logger.Error("enhancement aborted",
			zap.String("stage", string(err.Stage)),
			zap.String("kind", string(err.Kind)),
			zap.Error(err.Err))
		return nil, m.abort(err)
	}

	m.update(0, "Starting video enhancement")
	logger.Info("starting video enhancement")

	if err := o.checkUpload(upload); err != nil {
		return fail(err)
	}
	if err := m.advance(models.StateSizeChecked, 0, "Upload accepted"); err != nil {
		return fail(unexpected(models.StateSizeChecked, err))
	}
	if err := o.checkTools(); err != nil {
		return fail(err)
	}
	if err := m.advance(models.StateToolChecked, 0, "Transcoder available"); err != nil {
		return fail(unexpected(models.StateToolChecked, err))
	}

	ws, err := NewWorkspace(o.opts.WorkspaceRoot)
	if err != nil {
		return fail(unexpected(models.StateExtracted, err))
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("remove workspace", zap.String("dir", ws.Dir), zap.Error(err))
		}
	}()

	inputPath := ws.Path("input." + upload.Ext())
	if err := os.WriteFile(inputPath, upload.Data, 0o600); err != nil {
		return fail(unexpected(models.StateExtracted, err))
	}
	m.update(10, "Extracting audio from video")

	audioPath, perr := o.extract(ctx, ws, inputPath)
	if perr != nil {
		return fail(perr)
	}
	if err := m.advance(models.StateExtracted, 30, "Applying AI enhancement"); err != nil {
		return fail(unexpected(models.StateExtracted, err))
	}

	enhanced, perr := o.enhance(ctx, audioPath, logger)
	if perr != nil {
		return fail(perr)
	}
	if err := m.advance(models.StateEnhanced, 60, "Saving enhanced audio"); err != nil {
		return fail(unexpected(models.StateEnhanced, err))
	}

	enhancedAudio, perr := o.save(ws, enhanced)
	if perr != nil {
		return fail(perr)
	}
	m.update(80, "Creating final enhanced video")

	outputPath, perr := o.remux(ctx, ws, inputPath, enhancedAudio, upload.FileName)
	if perr != nil {
		return fail(perr)
	}
	if err := m.advance(models.StateRemuxed, 100, "Video merging complete"); err != nil {
		return fail(unexpected(models.StateRemuxed, err))
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return fail(unexpected(models.StatePresented, err))
	}

	result := &models.Result{
		FileName: OutputName(upload.FileName),
		MIMEType: MIMEType(upload.Ext()),
		Original: upload.Data,
		Enhanced: output,
		Samples:  len(enhanced.Samples),
		Elapsed:  time.Since(start),
	}
	if err := m.advance(models.StatePresented, 100, "Enhancement complete!"); err != nil {
		return fail(unexpected(models.StatePresented, err))
	}
	logger.Info("enhancement complete",
		zap.Duration("elapsed", result.Elapsed),
		zap.Int("samples", result.Samples),
		zap.Int("output_bytes", len(output)))
	return result, nil
}
