// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg implements the encoder and prober ports with one ffmpeg
// process per output file.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/procgroup"
	"github.com/rs/zerolog"
)

// ffmpeg exits with 255 after a clean shutdown on SIGINT.
const interruptedExitCode = 255

var (
	ErrNotStarted  = errors.New("encoder session not started")
	ErrEarlyExit   = errors.New("ffmpeg exited before producing frames")
	ErrEmptyOutput = errors.New("ffmpeg produced no output")
)

// Encoder spawns ffmpeg for every output file.
type Encoder struct {
	BinaryPath string
	VideoCodec string
	Preset     string
	// StopGrace is the wait between SIGINT, SIGTERM and SIGKILL.
	StopGrace time.Duration
	Logger    zerolog.Logger
}

var _ ports.Encoder = (*Encoder)(nil)

func NewEncoder(binaryPath string, stopGrace time.Duration) *Encoder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if stopGrace <= 0 {
		stopGrace = 5 * time.Second
	}
	return &Encoder{
		BinaryPath: binaryPath,
		StopGrace:  stopGrace,
		Logger:     log.WithComponent("ffmpeg"),
	}
}

// Prepare resolves the binary and output directory without starting anything.
func (e *Encoder) Prepare(_ context.Context, spec ports.EncodeSpec) (ports.EncodeSession, error) {
	bin, err := exec.LookPath(e.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary: %w", err)
	}
	if spec.DevicePath == "" || spec.OutputPath == "" {
		return nil, errors.New("device and output path are required")
	}
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0o750); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	return &session{
		bin:    bin,
		args:   buildArgs(spec, e.VideoCodec, e.Preset),
		output: spec.OutputPath,
		grace:  e.StopGrace,
		logger: e.Logger.With().Str(log.FieldPath, spec.OutputPath).Logger(),
		ring:   NewRingBuffer(50),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

type session struct {
	bin    string
	args   []string
	output string
	grace  time.Duration
	logger zerolog.Logger
	ring   *RingBuffer

	mu        sync.Mutex
	cmd       *exec.Cmd
	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}
	waitErr   error
}

// Start launches ffmpeg and returns once it reports encoded frames. The
// process is not bound to ctx; ctx only bounds the wait.
func (s *session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return errors.New("encoder session already started")
	}
	// #nosec G204 - binary comes from config; args are generated by buildArgs
	cmd := exec.Command(s.bin, s.args...)
	procgroup.Set(cmd)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to pipe stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("ffmpeg start failed: %w", err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	s.logger.Debug().Int(log.FieldPID, cmd.Process.Pid).Strs("args", s.args).Msg("ffmpeg started")
	go s.monitor(stderr)

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: %v: %s", ErrEarlyExit, s.waitErr, s.ring.Tail())
	case <-ctx.Done():
		s.Abort()
		return fmt.Errorf("waiting for first frame: %w", ctx.Err())
	}
}

func (s *session) monitor(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "frame=") {
			s.readyOnce.Do(func() { close(s.ready) })
			continue
		}
		s.ring.Add(line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("ffmpeg stderr scan error")
	}
	s.waitErr = s.cmd.Wait()
	close(s.done)
}

// Quiesce asks ffmpeg to stop reading the device and flush, escalating to
// SIGTERM and SIGKILL after the grace period.
func (s *session) Quiesce(ctx context.Context) error {
	cmd := s.started()
	if cmd == nil {
		return ErrNotStarted
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	errc := make(chan error, 1)
	go func() { errc <- procgroup.Escalate(cmd, s.done, syscall.SIGINT, s.grace) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		_ = procgroup.Kill(cmd, syscall.SIGKILL)
		<-errc
		return ctx.Err()
	}
}

// Finalize verifies ffmpeg exited cleanly and left a non-empty container.
func (s *session) Finalize(ctx context.Context) error {
	if s.started() == nil {
		return ErrNotStarted
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.waitErr; err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != interruptedExitCode {
			return fmt.Errorf("ffmpeg exit: %w: %s", err, s.ring.Tail())
		}
	}
	fi, err := os.Stat(s.output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if fi.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

// Abort kills the process group and waits for it to be reaped.
func (s *session) Abort() {
	cmd := s.started()
	if cmd == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	if err := procgroup.Kill(cmd, syscall.SIGKILL); err != nil {
		s.logger.Warn().Err(err).Msg("ffmpeg kill failed")
	}
	<-s.done
}

// Done is closed once the ffmpeg process has been reaped.
func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) started() *exec.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd
}

// scanLinesOrCR splits on \n and on the \r ffmpeg uses for progress lines.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
