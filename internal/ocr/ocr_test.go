package ocr

import (
	"context"
	"image"
	"testing"
	"time"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

type slowClient struct {
	delay time.Duration
	text  string
}

func (s *slowClient) ExtractText(ctx context.Context, _ image.Image, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.delay):
		return s.text, nil
	}
}

func (s *slowClient) Close() error { return nil }

func TestDisabledReportsUnavailable(t *testing.T) {
	var c Client = Disabled{}
	_, err := c.ExtractText(context.Background(), nil, "")
	if !apperrors.IsCode(err, apperrors.CodeOCRUnavailable) {
		t.Errorf("err = %v, want OCR_UNAVAILABLE", err)
	}
}

func TestTimeoutWrapperPassesThrough(t *testing.T) {
	c := WithTimeout(&slowClient{delay: time.Millisecond, text: "$120"}, time.Second)

	text, err := c.ExtractText(context.Background(), nil, "")
	if err != nil || text != "$120" {
		t.Errorf("ExtractText = %q,%v want $120,nil", text, err)
	}
}

func TestTimeoutWrapperBoundsCalls(t *testing.T) {
	c := WithTimeout(&slowClient{delay: time.Second}, 10*time.Millisecond)

	_, err := c.ExtractText(context.Background(), nil, "")
	if !apperrors.IsCode(err, apperrors.CodeOCRExtractFailed) {
		t.Errorf("err = %v, want OCR_EXTRACT_FAILED", err)
	}
}
