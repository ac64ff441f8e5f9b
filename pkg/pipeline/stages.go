package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voiceboost/pkg/enhance"
	"voiceboost/pkg/media"
	"voiceboost/pkg/models"
	"voiceboost/pkg/timeout"
)

func toolMessage(prefix string, err error) string {
	var te *media.ToolError
	if errors.As(err, &te) && te.Stderr != "" {
		return prefix + te.Stderr
	}
	return prefix + err.Error()
}

func (o *Orchestrator) extract(ctx context.Context, ws *Workspace, inputPath string) (string, *Error) {
	defer o.timeStage("extract", time.Now())

	audioPath := ws.Path("input.wav")
	if err := o.transcoder.ExtractAudio(ctx, inputPath, audioPath, o.opts.SampleRate); err != nil {
		kind := KindTool
		var te *media.ToolError
		if !errors.As(err, &te) {
			kind = KindUnclassified
		}
		return "", newError(kind, models.StateExtracted, err, "%s", toolMessage("Error processing video: ", err))
	}
	return audioPath, nil
}

func (o *Orchestrator) enhance(ctx context.Context, audioPath string, logger *zap.Logger) (models.Waveform, *Error) {
	defer o.timeStage("enhance", time.Now())

	wave, err := media.ReadWAV(audioPath)
	if err != nil {
		return models.Waveform{}, newError(KindUnclassified, models.StateEnhanced, err,
			"Error during audio enhancement: %v", err)
	}
	if wave.SampleRate != o.opts.SampleRate {
		err := fmt.Errorf("extracted audio is %d Hz, want %d Hz", wave.SampleRate, o.opts.SampleRate)
		return models.Waveform{}, newError(KindUnclassified, models.StateEnhanced, err,
			"Error during audio enhancement: %v", err)
	}
	if len(wave.Samples) == 0 {
		err := errors.New("video has no audio samples")
		return models.Waveform{}, newError(KindUnclassified, models.StateEnhanced, err,
			"Error during audio enhancement: %v", err)
	}
	logger.Info("audio loaded", zap.Int("samples", len(wave.Samples)), zap.Duration("duration", wave.Duration()))

	out, err := timeout.Invoke(ctx, o.opts.EnhanceTimeout, func(ctx context.Context) (models.Waveform, error) {
		return o.enhancer.Enhance(ctx, wave)
	})
	switch {
	case errors.Is(err, timeout.ErrTimeout):
		return models.Waveform{}, newError(KindTimeout, models.StateEnhanced, err,
			"Enhancement process took too long. Please try with a shorter video.")
	case enhance.IsOutOfMemory(err):
		return models.Waveform{}, newError(KindResource, models.StateEnhanced, err,
			"Not enough memory. Please try with a shorter video.")
	case err != nil:
		return models.Waveform{}, newError(KindUnclassified, models.StateEnhanced, err,
			"Error during audio enhancement: %v", err)
	}

	if out.SampleRate != wave.SampleRate {
		err := fmt.Errorf("model returned %d Hz audio for %d Hz input", out.SampleRate, wave.SampleRate)
		return models.Waveform{}, newError(KindUnclassified, models.StateEnhanced, err,
			"Error during audio enhancement: %v", err)
	}
	logger.Info("AI enhancement complete", zap.Int("samples", len(out.Samples)))
	return out, nil
}

func (o *Orchestrator) save(ws *Workspace, w models.Waveform) (string, *Error) {
	path := ws.Path("enhanced.wav")
	if err := media.WriteWAV(path, w); err != nil {
		return "", newError(KindUnclassified, models.StateRemuxed, err,
			"Error saving enhanced audio: %v", err)
	}
	return path, nil
}

func (o *Orchestrator) remux(ctx context.Context, ws *Workspace, videoPath, audioPath, fileName string) (string, *Error) {
	defer o.timeStage("remux", time.Now())

	outPath := ws.Path(OutputName(fileName))
	if err := o.transcoder.Remux(ctx, videoPath, audioPath, outPath); err != nil {
		kind := KindTool
		var te *media.ToolError
		if !errors.As(err, &te) {
			kind = KindUnclassified
		}
		return "", newError(kind, models.StateRemuxed, err, "%s", toolMessage("Error merging video: ", err))
	}
	return outPath, nil
}

func (o *Orchestrator) timeStage(stage string, start time.Time) {
	elapsed := time.Since(start)
	o.metrics.ObserveStage(stage, elapsed)
	o.logger.Debug("stage finished", zap.String("stage", stage), zap.Duration("elapsed", elapsed))
}
