package record_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

func mustFrame(t *testing.T, key, value string) []byte {
	t.Helper()
	payload, err := record.EncodeValuePayload(record.RecordTypeValue, []byte(key), []byte(value))
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	frame, err := record.EncodeFrame(record.RecordTypeValue, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return frame
}

func TestFrameReaderSequence(t *testing.T) {
	buf := new(bytes.Buffer)
	var offsets []int64
	for _, kv := range [][2]string{{"a", "1"}, {"bb", "22"}, {"ccc", "333"}} {
		offsets = append(offsets, int64(buf.Len()))
		buf.Write(mustFrame(t, kv[0], kv[1]))
	}

	fr := record.NewFrameReader(bytes.NewReader(buf.Bytes()))
	for i, want := range offsets {
		rec, err := fr.Next()
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if rec.Offset != want {
			t.Errorf("record %d: expected offset %d, got %d", i, want, rec.Offset)
		}
	}

	if _, err := fr.Next(); !record.IsCleanEOF(err) {
		t.Fatalf("expected clean EOF, got %v", err)
	}
	if fr.Offset() != int64(buf.Len()) {
		t.Errorf("expected final offset %d, got %d", buf.Len(), fr.Offset())
	}
}

func TestFrameReaderTornTail(t *testing.T) {
	first := mustFrame(t, "k1", "v1")
	second := mustFrame(t, "k2", "v2")
	data := append(append([]byte{}, first...), second[:len(second)-3]...)

	fr := record.NewFrameReader(bytes.NewReader(data))
	if _, err := fr.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := fr.Next()
	pe, ok := record.AsParseError(err)
	if !ok {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != record.KindTruncated {
		t.Errorf("expected truncated, got %s", pe.Kind)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
	if pe.SafeTruncateOffset != int64(len(first)) {
		t.Errorf("expected safe offset %d, got %d", len(first), pe.SafeTruncateOffset)
	}
}

func TestFrameReaderAtBase(t *testing.T) {
	frame := mustFrame(t, "k", "v")
	fr := record.NewFrameReaderAt(bytes.NewReader(frame), 512)

	rec, err := fr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Offset != 512 {
		t.Errorf("expected offset 512, got %d", rec.Offset)
	}
}
