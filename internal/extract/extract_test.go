package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	ex := NewText()

	tests := []struct {
		name     string
		raw      []byte
		filename string
		want     string
	}{
		{"txt", []byte("hello world"), "notes.txt", "hello world"},
		{"markdown verbatim", []byte("# Title\n\nBody."), "readme.md", "# Title\n\nBody."},
		{"uppercase extension", []byte("x"), "NOTES.TXT", "x"},
		{"bom stripped", []byte("\xEF\xBB\xBFhello"), "a.txt", "hello"},
		{"crlf normalized", []byte("line one\r\nline two"), "a.log", "line one\nline two"},
		{"empty file", []byte{}, "empty.txt", ""},
		{"multibyte", []byte("日本語のテキスト"), "jp.md", "日本語のテキスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.Extract(tt.raw, tt.filename)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	ex := NewText()

	for _, filename := range []string{"report.pdf", "photo.png", "noextension", "archive.tar.gz"} {
		_, err := ex.Extract([]byte("data"), filename)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Extract(%q) error = %v, want ErrUnsupported", filename, err)
		}

		var extractErr *Error
		if !errors.As(err, &extractErr) {
			t.Fatalf("Extract(%q) error is not *Error", filename)
		}
		if extractErr.Filename != filename {
			t.Errorf("error filename = %q, want %q", extractErr.Filename, filename)
		}
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	ex := NewText()

	_, err := ex.Extract([]byte{0xFF, 0xFE, 0x00}, "broken.txt")
	if err == nil {
		t.Fatal("Extract() should reject invalid UTF-8")
	}
	if errors.Is(err, ErrUnsupported) {
		t.Error("invalid encoding is a corrupt-content error, not an unsupported format")
	}
	if !strings.Contains(err.Error(), "broken.txt") {
		t.Errorf("error %q does not name the file", err)
	}
}

func TestExtractRejectsNulBytes(t *testing.T) {
	ex := NewText()

	_, err := ex.Extract([]byte("valid utf8 with \x00 inside"), "weird.txt")
	if err == nil {
		t.Fatal("Extract() should reject NUL bytes")
	}
}
