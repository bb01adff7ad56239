package ocr

import (
	"strings"
	"testing"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsvRow(level, left, top, width, height, conf, text string) string {
	return strings.Join([]string{level, "1", "1", "1", "1", "1", left, top, width, height, conf, text}, "\t")
}

func TestParseTSV(t *testing.T) {
	output := strings.Join([]string{
		tsvHeader,
		tsvRow("1", "0", "0", "800", "600", "-1", ""),
		tsvRow("4", "100", "200", "400", "30", "-1", ""),
		tsvRow("5", "100", "200", "120", "30", "96.5", "4111111111111111"),
		tsvRow("5", "240", "200", "80", "30", "88", "john@example.com"),
		tsvRow("5", "340", "200", "40", "30", "-1", "~~"),
		tsvRow("5", "400", "200", "40", "30", "72", "   "),
		"",
	}, "\n")

	words, err := ParseTSV(output)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("got %d words, want 2", len(words))
	}

	w := words[0]
	if w.Text != "4111111111111111" {
		t.Errorf("text = %q", w.Text)
	}
	if w.Confidence != 0.965 {
		t.Errorf("confidence = %f, want 0.965", w.Confidence)
	}
	if w.X0 != 100 || w.Y0 != 200 || w.X1 != 220 || w.Y1 != 230 {
		t.Errorf("box = (%f,%f)-(%f,%f)", w.X0, w.Y0, w.X1, w.Y1)
	}
	if words[1].Confidence != 0.88 {
		t.Errorf("confidence = %f, want 0.88", words[1].Confidence)
	}
}

func TestParseTSVMalformed(t *testing.T) {
	t.Run("TooFewColumns", func(t *testing.T) {
		output := tsvHeader + "\n5\t1\t2\n"
		if _, err := ParseTSV(output); err == nil {
			t.Fatal("expected an error for a short row")
		}
	})

	t.Run("BadGeometry", func(t *testing.T) {
		output := tsvHeader + "\n" + tsvRow("5", "abc", "200", "120", "30", "96", "word") + "\n"
		if _, err := ParseTSV(output); err == nil {
			t.Fatal("expected an error for non-numeric geometry")
		}
	})
}

func TestParseTSVEmpty(t *testing.T) {
	words, err := ParseTSV(tsvHeader + "\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(words) != 0 {
		t.Errorf("got %d words from header-only output", len(words))
	}
}

func TestNewTesseractDefaults(t *testing.T) {
	ts := NewTesseract(Config{}, nil)
	if ts.binary != "tesseract" || ts.lang != "eng" || ts.psm != 3 {
		t.Errorf("defaults = %s/%s/%d", ts.binary, ts.lang, ts.psm)
	}
}
