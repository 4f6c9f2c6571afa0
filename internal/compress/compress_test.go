package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestShouldCompress(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		threshold int64
		want      bool
	}{
		{name: "below threshold", size: 50, threshold: DefaultThreshold, want: false},
		{name: "at threshold", size: DefaultThreshold, threshold: DefaultThreshold, want: false},
		{name: "above threshold", size: DefaultThreshold + 1, threshold: DefaultThreshold, want: true},
		{name: "zero threshold", size: 1, threshold: 0, want: true},
		{name: "empty with zero threshold", size: 0, threshold: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldCompress(tt.size, tt.threshold); got != tt.want {
				t.Errorf("ShouldCompress(%d, %d) = %v, want %v", tt.size, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: []byte{}},
		{name: "small text", input: []byte(`{"permissions":{"allow":[]}}`)},
		{name: "binary", input: []byte{0x00, 0xff, 0x1f, 0x8b, 0x08}},
		{name: "large repetitive", input: bytes.Repeat([]byte("hooks "), 50000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Compress(tt.input)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}

			got, err := Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.input))
			}
		})
	}
}

func TestCompress_ReadableByStandardGzip(t *testing.T) {
	input := bytes.Repeat([]byte("abc"), 1000)
	packed, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	r, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Error("standard gzip reader produced different content")
	}
}

func TestDecompress_InvalidInput(t *testing.T) {
	if _, err := Decompress([]byte("not gzip")); err == nil {
		t.Error("Decompress() expected error for invalid input")
	}
}
