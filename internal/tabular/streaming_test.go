package tabular

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{
			name:     "with BOM",
			input:    []byte{0xEF, 0xBB, 0xBF, 'a', ',', 'b'},
			expected: []byte("a,b"),
		},
		{
			name:     "without BOM",
			input:    []byte("a,b"),
			expected: []byte("a,b"),
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: []byte{},
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: []byte{},
		},
		{
			name:     "short input",
			input:    []byte("ab"),
			expected: []byte("ab"),
		},
		{
			name:     "partial BOM kept",
			input:    []byte{0xEF, 0xBB, 'x'},
			expected: []byte{0xEF, 0xBB, 'x'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "ascii untouched",
			input:    []byte("issuer_name,custodian"),
			expected: "issuer_name,custodian",
		},
		{
			name:     "valid multibyte untouched",
			input:    []byte("Société Générale"),
			expected: "Société Générale",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'a', 0xFF, 'b'},
			expected: "a?b",
		},
		{
			name:     "latin-1 e acute replaced",
			input:    []byte{'c', 'a', 'f', 0xE9},
			expected: "caf?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// One byte per Read forces every multibyte rune across a boundary.
	input := "Zürich,東京"
	r := newUTF8Sanitizer(iotest.OneByteReader(bytes.NewReader([]byte(input))))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestSizeLimitReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		wantErr error
	}{
		{name: "under limit", input: "abc", limit: 10},
		{name: "at limit", input: "abcdefghij", limit: 10},
		{name: "over limit", input: "abcdefghijk", limit: 10, wantErr: ErrFileTooLarge},
		{name: "no limit", input: "abcdefghijk", limit: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSizeLimitReader(bytes.NewReader([]byte(tt.input)), tt.limit)
			_, err := io.ReadAll(r)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWrapDelimited(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nAcme\xff\n")...)
	got, err := io.ReadAll(wrapDelimited(bytes.NewReader(input), 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "name\nAcme?\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
