// Package ocr provides the concrete text-recognition engine behind the
// pipeline's OCREngine interface. It shells out to the tesseract binary in
// TSV mode; swapping in another engine only requires implementing Recognize.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/detect"
)

// Tesseract recognizes words on a page by invoking the tesseract CLI.
type Tesseract struct {
	binary string
	lang   string
	psm    int
	logger *zap.Logger
}

// Config configures the tesseract invocation.
type Config struct {
	Binary string // defaults to "tesseract"
	Lang   string // defaults to "eng"
	PSM    int    // page segmentation mode, defaults to 3
}

// NewTesseract creates a tesseract-backed OCR engine.
func NewTesseract(cfg Config, logger *zap.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.PSM == 0 {
		cfg.PSM = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tesseract{binary: cfg.Binary, lang: cfg.Lang, psm: cfg.PSM, logger: logger}
}

// Recognize runs tesseract over one rasterized page and returns the word
// boxes in pixel space.
func (t *Tesseract) Recognize(ctx context.Context, page image.Image) ([]detect.OCRWord, error) {
	var input bytes.Buffer
	if err := png.Encode(&input, page); err != nil {
		return nil, fmt.Errorf("failed to encode page for ocr: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.binary,
		"stdin", "stdout",
		"-l", t.lang,
		"--psm", strconv.Itoa(t.psm),
		"tsv",
	)
	cmd.Stdin = &input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	words, err := ParseTSV(stdout.String())
	if err != nil {
		return nil, err
	}

	t.logger.Debug("OCR pass finished",
		zap.Int("words", len(words)),
	)
	return words, nil
}

// TSV column layout produced by tesseract:
// level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvColumns   = 12
	tsvWordLevel = "5"
)

// ParseTSV converts tesseract TSV output into word boxes. Non-word rows and
// words tesseract could not score (conf -1) are dropped; confidence is
// normalized from percent to [0,1].
func ParseTSV(output string) ([]detect.OCRWord, error) {
	var words []detect.OCRWord

	for i, line := range strings.Split(output, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header or trailing blank
		}
		fields := strings.Split(line, "\t")
		if len(fields) < tsvColumns {
			return nil, fmt.Errorf("malformed tsv row %d: %d columns", i, len(fields))
		}
		if fields[0] != tsvWordLevel {
			continue
		}

		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}

		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}

		left, err1 := strconv.ParseFloat(fields[6], 64)
		top, err2 := strconv.ParseFloat(fields[7], 64)
		width, err3 := strconv.ParseFloat(fields[8], 64)
		height, err4 := strconv.ParseFloat(fields[9], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("malformed tsv geometry at row %d", i)
		}

		words = append(words, detect.OCRWord{
			Text:       text,
			Confidence: conf / 100.0,
			X0:         left,
			Y0:         top,
			X1:         left + width,
			Y1:         top + height,
		})
	}

	return words, nil
}
