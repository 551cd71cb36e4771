// Package ocr wraps the Tesseract engine behind a small interface the
// recognizers call through. The engine is a black box: regions go in
// preprocessed, text comes out, and every call is bounded by a timeout.
package ocr

import (
	"context"
	"image"
	"time"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// Client extracts text from an image region. whitelist restricts the
// character set ("" means unrestricted).
type Client interface {
	ExtractText(ctx context.Context, img image.Image, whitelist string) (string, error)
	Close() error
}

// Disabled is the capability-checked fallback injected when Tesseract is
// not available at construction time. Cascades treat its error as a
// failed strategy and move on.
type Disabled struct{}

// ExtractText always reports OCR as unavailable.
func (Disabled) ExtractText(context.Context, image.Image, string) (string, error) {
	return "", apperrors.New(apperrors.CodeOCRUnavailable, "ocr engine not available")
}

// Close is a no-op.
func (Disabled) Close() error { return nil }

// WithTimeout bounds every ExtractText call. A timeout is reported as
// OCR_EXTRACT_FAILED, which the cascade treats like any recognition miss.
func WithTimeout(c Client, timeout time.Duration) Client {
	return &timeoutClient{inner: c, timeout: timeout}
}

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

type textResult struct {
	text string
	err  error
}

func (t *timeoutClient) ExtractText(ctx context.Context, img image.Image, whitelist string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ch := make(chan textResult, 1)
	go func() {
		text, err := t.inner.ExtractText(ctx, img, whitelist)
		ch <- textResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", apperrors.Wrap(ctx.Err(), apperrors.CodeOCRExtractFailed, "ocr timed out")
	case res := <-ch:
		return res.text, res.err
	}
}

func (t *timeoutClient) Close() error { return t.inner.Close() }
