package ocr

import (
	"context"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// Engine is the gosseract-backed OCR client.
type Engine struct {
	mu            sync.Mutex // gosseract clients are not safe for concurrent use
	client        *gosseract.Client
	upscaleMinDim int
}

// NewEngine creates a Tesseract client tuned for table text: no dictionary
// correction (pot figures and card ranks are not English words), single
// uniform text block per region.
func NewEngine(upscaleMinDim int) (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeOCRUnavailable, "set ocr language")
	}

	// Disable dictionary-based word correction so "2500" is not "corrected".
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("language_model_penalty_non_dict_word", "0")
	_ = client.SetVariable("language_model_penalty_non_freq_dict_word", "0")

	if upscaleMinDim <= 0 {
		upscaleMinDim = 150
	}
	return &Engine{client: client, upscaleMinDim: upscaleMinDim}, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExtractText preprocesses the region and runs Tesseract over it.
func (e *Engine) ExtractText(ctx context.Context, img image.Image, whitelist string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	encoded, err := e.preprocess(img)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "set page seg mode")
	}
	if err := e.client.SetWhitelist(whitelist); err != nil && whitelist != "" {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "set whitelist")
	}
	if err := e.client.SetImageFromBytes(encoded); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "set image")
	}

	text, err := e.client.Text()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "ocr failed")
	}

	text = strings.TrimSpace(text)
	text = strings.Join(strings.Fields(text), " ")
	return text, nil
}

// preprocess prepares a region for OCR: upscale small regions, grayscale,
// contrast enhancement, Otsu binarization, and light-on-dark inversion.
func (e *Engine) preprocess(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "convert image")
	}
	defer mat.Close()

	h, w := mat.Rows(), mat.Cols()
	if h == 0 || w == 0 {
		return nil, apperrors.New(apperrors.CodeOCRExtractFailed, "empty region")
	}

	// Upscale small regions; Tesseract wants glyphs well above a few pixels.
	scaled := gocv.NewMat()
	defer scaled.Close()
	if minDim := min(h, w); minDim < e.upscaleMinDim {
		scale := float64(e.upscaleMinDim) / float64(minDim)
		gocv.Resize(mat, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		mat.CopyTo(&scaled)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(scaled, &gray, gocv.ColorRGBToGray)

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(gray, &enhanced)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(enhanced, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	// Tesseract expects dark text on light background; invert light-on-dark.
	whiteCount := gocv.CountNonZero(binary)
	totalPixels := binary.Rows() * binary.Cols()
	if float64(whiteCount)/float64(totalPixels) < 0.5 {
		gocv.BitwiseNot(binary, &binary)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRExtractFailed, "encode region")
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
