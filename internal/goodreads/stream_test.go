package goodreads

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// chunkReader yields at most n bytes per Read so tests can exercise runes
// split across read boundaries.
type chunkReader struct {
	reader io.Reader
	n      int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.reader.Read(p)
}

func TestWrapReader_StripsBOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Title,Author\n")...)
	got, err := io.ReadAll(WrapReader(bytes.NewReader(in)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Title,Author\n" {
		t.Errorf("got %q", got)
	}
}

func TestWrapReader_NoBOMPassthrough(t *testing.T) {
	got, err := io.ReadAll(WrapReader(strings.NewReader("Title,Author\n")))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Title,Author\n" {
		t.Errorf("got %q", got)
	}
}

func TestWrapReader_ShortFile(t *testing.T) {
	for _, in := range []string{"", "a", "ab"} {
		got, err := io.ReadAll(WrapReader(strings.NewReader(in)))
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if string(got) != in {
			t.Errorf("%q: got %q", in, got)
		}
	}
}

func TestWrapReader_ReplacesInvalidBytes(t *testing.T) {
	in := []byte{'a', 0xFF, 'b', 0xC3, 0x28, 'c'}
	got, err := io.ReadAll(WrapReader(bytes.NewReader(in)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a?b?(c" {
		t.Errorf("got %q, want %q", got, "a?b?(c")
	}
}

func TestWrapReader_KeepsValidMultibyte(t *testing.T) {
	in := "Café Müller — 日本語"
	got, err := io.ReadAll(WrapReader(strings.NewReader(in)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

// A multi-byte rune split across read boundaries must survive intact.
func TestWrapReader_RuneSplitAcrossReads(t *testing.T) {
	in := "héllo wörld 素晴らしい"
	for chunk := 1; chunk <= 4; chunk++ {
		r := WrapReader(&chunkReader{reader: strings.NewReader(in), n: chunk})
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("chunk %d: %v", chunk, err)
		}
		if string(got) != in {
			t.Errorf("chunk %d: got %q, want %q", chunk, got, in)
		}
	}
}

func TestWrapReader_TruncatedRuneAtEOF(t *testing.T) {
	// 0xC3 opens a two-byte sequence that never completes.
	got, err := io.ReadAll(WrapReader(bytes.NewReader([]byte{'a', 0xC3})))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a?" {
		t.Errorf("got %q, want %q", got, "a?")
	}
}
