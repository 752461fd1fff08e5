package pool

import (
	"bytes"
	"testing"
)

func TestGetBuffer_IsEmpty(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("<main data-slot=\"pages\">home</main>")
	PutBuffer(buf)

	again := GetBuffer()
	if again.Len() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", again.Len())
	}
	PutBuffer(again)
}

func TestPutBuffer_IgnoresNilAndOversized(t *testing.T) {
	PutBuffer(nil)
	PutBuffer(bytes.NewBuffer(make([]byte, 0, maxPooled+1)))
}
