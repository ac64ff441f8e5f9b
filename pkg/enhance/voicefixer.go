package enhance

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

//go:embed voicefixer_worker.py
var workerScript []byte

const drainTimeout = 30 * time.Second

type ProcessConfig struct {
	Python       string
	Script       string
	StartTimeout time.Duration
	Logger       *zap.Logger
}

// NewVoiceFixer returns a Factory that starts the VoiceFixer helper. The
// embedded script is used unless cfg.Script names another one.
func NewVoiceFixer(cfg ProcessConfig) Factory {
	return func() (Model, error) {
		return startProcess(cfg)
	}
}

func startProcess(cfg ProcessConfig) (Model, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	script := cfg.Script
	cleanup := func() {}
	if script == "" {
		f, err := os.CreateTemp("", "voiceboost_voicefixer_*.py")
		if err != nil {
			return nil, fmt.Errorf("write helper script: %w", err)
		}
		if _, err := f.Write(workerScript); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("write helper script: %w", err)
		}
		f.Close()
		script = f.Name()
		cleanup = func() { os.Remove(script) }
	}

	cmd := exec.Command(python, "-u", script)
	cmd.Env = os.Environ()
	cmd.Stderr = zap.NewStdLog(logger.Named("voicefixer")).Writer()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start %s: %w", python, err)
	}
	logger.Info("voicefixer helper started", zap.Int("pid", cmd.Process.Pid))

	proc := processControl{
		interrupt: func() error { return cmd.Process.Signal(os.Interrupt) },
		kill:      func() error { return cmd.Process.Kill() },
		wait: func() error {
			err := cmd.Wait()
			cleanup()
			return err
		},
	}

	m, err := newStreamModel(stdin, stdout, proc, cfg.StartTimeout, logger)
	if err != nil {
		_ = proc.kill()
		_ = proc.wait()
		return nil, err
	}
	return m, nil
}

type processControl struct {
	interrupt func() error
	kill      func() error
	wait      func() error
}

// streamModel speaks the frame protocol with a helper over a pair of
// streams. After an I/O failure it refuses further work.
type streamModel struct {
	w      io.WriteCloser
	r      *bufio.Reader
	proc   processControl
	logger *zap.Logger

	mu     sync.Mutex
	broken error
}

func newStreamModel(w io.WriteCloser, r io.Reader, proc processControl, readyTimeout time.Duration, logger *zap.Logger) (*streamModel, error) {
	if readyTimeout <= 0 {
		readyTimeout = 5 * time.Minute
	}
	m := &streamModel{w: w, r: bufio.NewReader(r), proc: proc, logger: logger}

	ready := make(chan error, 1)
	go func() {
		var h hello
		if err := readHeader(m.r, &h); err != nil {
			ready <- fmt.Errorf("read helper greeting: %w", err)
			return
		}
		if !h.Ready {
			ready <- fmt.Errorf("initialize VoiceFixer: %s", h.Error)
			return
		}
		ready <- nil
	}()

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-timer.C:
		return nil, fmt.Errorf("VoiceFixer not ready after %s", readyTimeout)
	}
	logger.Info("voicefixer model ready")
	return m, nil
}

type frameResult struct {
	resp    response
	samples []float32
	err     error
}

func (m *streamModel) Restore(ctx context.Context, samples []float32, sampleRate int, opts Options) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, m.broken)
	}

	req := request{Samples: len(samples), SampleRate: sampleRate, Mode: opts.Mode, CUDA: opts.CUDA}
	if err := writeFrame(m.w, req, samples); err != nil {
		m.broken = err
		return nil, fmt.Errorf("send waveform to model: %w", err)
	}

	done := make(chan frameResult, 1)
	go func() {
		var res frameResult
		if res.err = readHeader(m.r, &res.resp); res.err == nil && res.resp.OK {
			res.samples, res.err = readSamples(m.r, res.resp.Samples)
		}
		done <- res
	}()

	select {
	case res := <-done:
		return m.interpret(res)
	case <-ctx.Done():
	}

	// Ask the helper to stop and consume its answer so the next call starts
	// on a frame boundary.
	if err := m.proc.interrupt(); err != nil {
		m.logger.Warn("interrupt voicefixer helper", zap.Error(err))
	}
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			m.broken = res.err
		}
	case <-timer.C:
		m.broken = errors.New("helper did not stop after interrupt")
		m.logger.Error("voicefixer helper unresponsive, killing it")
		_ = m.proc.kill()
	}
	return nil, ctx.Err()
}

func (m *streamModel) interpret(res frameResult) ([]float32, error) {
	if res.err != nil {
		m.broken = res.err
		return nil, fmt.Errorf("read model output: %w", res.err)
	}
	if res.resp.OK {
		return res.samples, nil
	}
	switch res.resp.Kind {
	case kindOOM:
		return nil, fmt.Errorf("%w: %s", ErrOutOfMemory, res.resp.Error)
	case kindCancelled:
		return nil, ErrCancelled
	default:
		return nil, errors.New(res.resp.Error)
	}
}

// Close ends the helper by closing its input, killing it if it has not
// exited within a few seconds.
func (m *streamModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.w.Close()
	exited := make(chan error, 1)
	go func() { exited <- m.proc.wait() }()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		_ = m.proc.kill()
		<-exited
	}
	m.broken = errors.New("model closed")
	return nil
}
