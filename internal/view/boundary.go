package view

import (
	"bytes"
	"context"
	"html"
	"io"
	"log/slog"
	"time"

	"github.com/sakif/codeshare/internal/apperror"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond
)

// Boundary isolates a render region. A failed render is retried with
// exponential backoff (BaseDelay, 2×, 4× ...) up to Attempts times, after
// which the fallback panel is written in its place. Partial output of a
// failed attempt is never written.
//
// Expected application errors (not found, forbidden ...) are returned
// untouched on the first failure; handlers deal with those.
type Boundary struct {
	Attempts  int
	BaseDelay time.Duration
	// Fallback writes the panel shown after the last failed attempt.
	Fallback func(w io.Writer, region string, err error) error

	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewBoundary(logger *slog.Logger) *Boundary {
	return &Boundary{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		Fallback:  writeFallbackPanel,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Render runs render into a buffer and copies it to w on success. It
// returns an error only for expected application errors, a cancelled ctx
// or a failing writer; exhausted retries end in the fallback panel and nil.
func (b *Boundary) Render(ctx context.Context, w io.Writer, region string, render func(io.Writer) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		buf     bytes.Buffer
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := b.BaseDelay << (attempt - 1)
			if err := b.sleep(ctx, delay); err != nil {
				return err
			}
		}

		buf.Reset()
		lastErr = safeRender(render, &buf)
		if lastErr == nil {
			_, err := buf.WriteTo(w)
			return err
		}
		if isExpected(lastErr) {
			return lastErr
		}
		b.logger.Warn("render failed",
			slog.String("region", region),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}

	b.logger.Error("render gave up, showing fallback",
		slog.String("region", region),
		slog.String("error", lastErr.Error()),
	)
	return b.Fallback(w, region, lastErr)
}

func safeRender(render func(io.Writer) error, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return render(w)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "render panic" }

func isExpected(err error) bool {
	return apperror.IsExpected(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeFallbackPanel(w io.Writer, region string, _ error) error {
	_, err := io.WriteString(w, `<div class="panel-error" role="alert" data-region="`+html.EscapeString(region)+`">`+
		`<strong>Something went wrong</strong>`+
		`<p>This section could not be displayed. Please reload the page.</p></div>`)
	return err
}
