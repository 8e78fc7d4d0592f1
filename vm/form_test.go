package vm

import (
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// formBuilder assembles a FORM byte buffer by appending segments and
// recording their absolute offsets, so list/nameRef fields can reference
// data by offset the way the real container format does. It only appends;
// offsets of later data are computed by the caller before writing it.
type formBuilder struct {
	buf []byte
}

func (b *formBuilder) offset() uint32 { return uint32(len(b.buf)) }

func (b *formBuilder) u32(v uint32) uint32 {
	start := b.offset()
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	b.buf = append(b.buf, tmp...)
	return start
}

func (b *formBuilder) bytes(data []byte) uint32 {
	start := b.offset()
	b.buf = append(b.buf, data...)
	return start
}

func (b *formBuilder) cstring(s string) uint32 {
	return b.bytes(append([]byte(s), 0))
}

// chunk writes a tag+length header immediately followed by payload.
func (b *formBuilder) chunk(tag string, payload []byte) {
	var t [4]byte
	copy(t[:], tag)
	b.bytes(t[:])
	b.u32(uint32(len(payload)))
	b.bytes(payload)
}

func buildMinimalForm(t *testing.T) []byte {
	t.Helper()
	b := &formBuilder{}
	b.bytes([]byte("FORM"))
	b.u32(0) // FORM-level length is unused by Decode

	// STRG payload: a single-entry address list (count=1, then one
	// chunk-relative address) followed by the entry itself — the address
	// list header is 8 bytes (count + one address), so the one entry
	// starts at chunk-relative offset 8.
	stringsPayload := &formBuilder{}
	stringsPayload.u32(1) // count
	stringsPayload.u32(8) // address of the one entry, chunk-relative
	stringsPayload.cstring("main")
	strgChunkStart := b.offset()
	b.chunk("STRG", stringsPayload.buf)
	// Absolute offset of the "main" cstring: chunk header (tag+length = 8
	// bytes) + the chunk-relative address (8) computed above.
	scriptNameAbs := strgChunkStart + 8 + 8

	// Unknown chunk: must be skipped without aborting decode.
	b.chunk("XTRA", []byte{1, 2, 3, 4})

	// CODE chunk: one script entry referencing the name above and an empty
	// code range.
	codePayload := &formBuilder{}
	codePayload.u32(1) // count
	codePayload.u32(8) // address of the one entry, chunk-relative
	codePayload.u32(scriptNameAbs)
	codePayload.u32(0) // codeOffset: unused, codeLength is 0
	codePayload.u32(0) // codeLength
	b.chunk("CODE", codePayload.buf)

	return b.buf
}

func TestDecodeMinimalForm(t *testing.T) {
	buf := buildMinimalForm(t)
	form, err := Decode(NewByteSource(buf), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, form.Scripts, 1)
	require.Equal(t, "main", form.Scripts[0].Name)
	require.Empty(t, form.Scripts[0].Code)

	require.Len(t, form.UnknownChunks, 1)
	require.Equal(t, "XTRA", form.UnknownChunks[0].TagString())
}

func TestDecodeTruncatedAtChunkHeader(t *testing.T) {
	buf := []byte("FORM")
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, []byte("ST")...) // truncated tag
	_, err := Decode(NewByteSource(buf), zerolog.Nop())
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrTruncatedInput, verr.Kind)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	b := &formBuilder{}
	b.bytes([]byte("FORM"))
	b.u32(0)
	b.bytes([]byte("CODE"))
	b.u32(100) // claims 100 bytes of payload that don't exist
	_, err := Decode(NewByteSource(b.buf), zerolog.Nop())
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrTruncatedInput, verr.Kind)
}

func TestDecodeRejectsNonFormHeader(t *testing.T) {
	_, err := Decode(NewByteSource([]byte("NOPE0000")), zerolog.Nop())
	require.Error(t, err)
}

func TestReadListDecodesEachAddress(t *testing.T) {
	buf := []byte{
		2, 0, 0, 0, // count
		16, 0, 0, 0, // addr -> offset 16
		20, 0, 0, 0, // addr -> offset 20
		0, 0, 0, 0, // unused padding
		7, 0, 0, 0, // value at offset 16
		9, 0, 0, 0, // value at offset 20
	}
	r := NewReader(buf)
	vals, err := ReadList(r, func(er *Reader) (uint32, error) {
		return er.ReadU32()
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{7, 9}, vals)
}
