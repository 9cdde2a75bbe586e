// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns helper processes in their own process group and
// tears the whole group down with signal escalation.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
)

var ErrKillFailed = errors.New("kill operation failed")

// Escalate asks the group led by cmd to exit with first, then SIGTERM after
// grace, then SIGKILL after another grace. done must be closed once the
// leader has been reaped by the caller's Wait goroutine.
func Escalate(cmd *exec.Cmd, done <-chan struct{}, first syscall.Signal, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	ladder := []syscall.Signal{first, syscall.SIGTERM, syscall.SIGKILL}
	switch first {
	case syscall.SIGTERM:
		ladder = ladder[1:]
	case syscall.SIGKILL:
		ladder = ladder[2:]
	}

	for _, sig := range ladder {
		if err := Kill(cmd, sig); err != nil {
			metrics.IncProcTerminate(sig.String(), "error")
			log.L().Warn().Err(err).Int(log.FieldPID, pid).Str("signal", sig.String()).Msg("signal to process group failed")
		} else {
			metrics.IncProcTerminate(sig.String(), "sent")
		}

		select {
		case <-done:
			metrics.IncProcWait("exited")
			return nil
		case <-time.After(grace):
			log.L().Warn().Int(log.FieldPID, pid).Str("signal", sig.String()).Dur("grace", grace).
				Msg("process group still alive after grace period, escalating")
		}
	}

	metrics.IncProcWait("timeout")
	return ErrKillFailed
}
