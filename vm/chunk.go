package vm

// ChunkHeader is the 4-byte ASCII tag + 4-byte little-endian length that
// precedes every top-level and nested chunk in the container format
// (spec.md §4.2). Grounded on original_source's ListChunk<T>/chunk header
// read, generalized from the C++ templates into an explicit Go struct plus
// a generic ReadList helper below.
type ChunkHeader struct {
	Tag    [4]byte
	Length uint32
}

func (h ChunkHeader) TagString() string { return string(h.Tag[:]) }

// ReadChunkHeader reads a tag+length pair at the reader's current position.
func ReadChunkHeader(r *Reader) (ChunkHeader, error) {
	tag, err := r.ReadTag()
	if err != nil {
		return ChunkHeader{}, err
	}
	length, err := r.ReadU32()
	if err != nil {
		return ChunkHeader{}, err
	}
	return ChunkHeader{Tag: tag, Length: length}, nil
}

// Chunk is an opaque, undecoded child chunk: its tag is not one the form
// decoder recognizes, so its payload is kept verbatim instead of being
// rejected outright (spec.md's decoder-level non-fatal-unknown-chunk
// property, SPEC_FULL.md §3[ADDED]).
type Chunk struct {
	Tag     [4]byte
	Payload []byte
}

func (c Chunk) TagString() string { return string(c.Tag[:]) }

// ReadList implements the recurring `{count, count × address}` indirected
// list encoding (spec.md §4.2/§6): a count followed by that many absolute
// addresses, each one followed to decode a T via decodeElem. Grounded on
// original_source/src/pvm/unpack/chunk/list.hpp's List<T>/user_reader, which
// does the same count+indirection walk via C++ templates; here it's a Go
// generic function parameterized over the element decoder instead.
func ReadList[T any](r *Reader, decodeElem func(er *Reader) (T, error)) ([]T, error) {
	addrs, err := r.ReadAddressList()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(addrs))
	for _, addr := range addrs {
		elemReader := r.Clone()
		if err := elemReader.Seek(addr); err != nil {
			return nil, err
		}
		elem, err := decodeElem(elemReader)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}
