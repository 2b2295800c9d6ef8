// Package voice captures audio for voice questions. The capture source is
// an io.Reader (a recorder process, a file, a pipe); this package owns the
// hard wall-clock cap and hands the raw bytes to the session controller,
// which base64-encodes them for the duplex transport.
package voice

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/lfzhong/excel-agent/internal/errors"
)

// DefaultMaxDuration is the hard wall-clock cap on one recording. When it
// elapses, capture is force-stopped and whatever was read is submitted
// as-is.
const DefaultMaxDuration = 30 * time.Second

// captureChunkSize is the read granularity; small enough that the cap cuts
// in promptly on slow sources.
const captureChunkSize = 4 * 1024

// Capture reads audio from src until EOF, ctx cancellation, or the cap.
//
// Behavior at the boundaries:
//   - EOF: returns everything read, nil error.
//   - Cap elapsed: returns everything read so far, nil error. The
//     recording is truncated, not failed.
//   - ctx cancelled before any data: returns voice.capture_failed.
//   - Read error: returns voice.capture_failed with the partial data.
//
// maxDuration <= 0 selects DefaultMaxDuration.
func Capture(ctx context.Context, src io.Reader, maxDuration time.Duration) ([]byte, error) {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	// The derived context is cancelled the moment Capture returns, so the
	// reader goroutine below always has an escape even when the caller's
	// context lives on.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)

	// Reader goroutine: the io.Reader contract has no cancellation, so the
	// cap and ctx are enforced on the receiving side. After Capture returns
	// the goroutine exits on its next send; only a source that blocks
	// forever inside Read can pin it, and real recorder processes are
	// killed by the caller after Capture returns.
	go func() {
		buf := make([]byte, captureChunkSize)
		for {
			n, err := src.Read(buf)
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case chunks <- chunk{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var captured []byte
	for {
		select {
		case <-ctx.Done():
			if len(captured) == 0 {
				return nil, errors.Wrap(errors.CodeVoiceCaptureFailed, "capture cancelled", ctx.Err())
			}
			return captured, nil
		case <-deadline.C:
			log.Printf("Voice capture hit the %s cap, submitting %d bytes as-is", maxDuration, len(captured))
			return captured, nil
		case ch := <-chunks:
			captured = append(captured, ch.data...)
			if ch.err == io.EOF {
				return captured, nil
			}
			if ch.err != nil {
				return captured, errors.Wrap(errors.CodeVoiceCaptureFailed, "failed to read audio source", ch.err)
			}
		}
	}
}
