package vm

import (
	"fmt"

	"github.com/rs/zerolog"
)

// VarScope classifies a VARI chunk entry's home, the decode-time analog of
// InstType for variable definitions (SPEC_FULL.md §3[ADDED]).
type VarScope uint8

const (
	VarScopeGlobal VarScope = iota
	VarScopeLocal
	VarScopeInstance
)

func (s VarScope) String() string {
	switch s {
	case VarScopeGlobal:
		return "global"
	case VarScopeLocal:
		return "local"
	case VarScopeInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// VariableDefinition is one entry of the VARI chunk.
type VariableDefinition struct {
	Name  string
	VarId VarId
	Scope VarScope
}

// SpriteDefinition is one entry of the SPRT chunk: a known-but-VM-irrelevant
// asset, decoded and kept on Form purely for round-trip/debug purposes
// (supplemented from original_source/unpack/chunk/sprite.hpp).
type SpriteDefinition struct {
	Name         string
	Width        uint32
	Height       uint32
	TextureCount uint32
}

// scriptEntry is the raw CODE chunk element before cross-referencing
// against SCPT by name.
type scriptEntry struct {
	nameRef    uint32
	codeOffset uint32
	codeLength uint32
}

// scptEntry is one SCPT (script id table) row.
type scptEntry struct {
	name string
	id   uint32
}

// Form is the immutable, fully decoded in-memory container: the VM's only
// input besides a Source. Grounded on original_source/main.cpp's top-level
// Form decode (read FORM, dispatch child chunks, cross-reference SCPT with
// CODE by name) and spec.md §4.2.
type Form struct {
	Strings   []string
	Variables []VariableDefinition
	Functions []FunctionDefinition
	Scripts   []Script
	Sprites   []SpriteDefinition

	// UnknownChunks holds every chunk whose tag the decoder does not
	// recognize, kept opaque instead of rejected (non-fatal UnknownChunk).
	UnknownChunks []Chunk

	scriptIndexByName map[string]int
}

// ScriptByName looks up a decoded script for the host driver / call opcode.
func (f *Form) ScriptByName(name string) (int, bool) {
	idx, ok := f.scriptIndexByName[name]
	return idx, ok
}

const formTag = "FORM"

// Decode parses a Source's bytes into a Form. Unknown top-level chunks are
// logged (when logger is non-zero) and skipped rather than rejected.
func Decode(src Source, logger zerolog.Logger) (*Form, error) {
	r := NewReader(src.Bytes())

	tag, err := r.ReadTag()
	if err != nil {
		return nil, err
	}
	if string(tag[:]) != formTag {
		return nil, newVMError(ErrTruncatedInput, "form header").Wrap(fmt.Errorf("expected FORM tag, got %q", tag[:]))
	}
	// The FORM header carries its own length covering all child chunks;
	// we don't need it beyond validating the tag, so skip it.
	if _, err := r.ReadU32(); err != nil {
		return nil, err
	}

	form := &Form{scriptIndexByName: map[string]int{}}

	var rawScripts []scriptEntry
	var scptEntries []scptEntry

	for r.Tell() < r.Len() {
		header, err := ReadChunkHeader(r)
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes(header.Length)
		if err != nil {
			return nil, err
		}
		cr := NewReader(payload)

		switch header.TagString() {
		case "STRG":
			strs, err := decodeStringTable(cr)
			if err != nil {
				return nil, err
			}
			form.Strings = strs

		case "VARI":
			vars, err := decodeVariableTable(cr, r)
			if err != nil {
				return nil, err
			}
			form.Variables = vars

		case "FUNC":
			funcs, err := decodeFunctionTable(cr, r)
			if err != nil {
				return nil, err
			}
			form.Functions = funcs

		case "SCPT":
			entries, err := decodeScriptIdTable(cr, r)
			if err != nil {
				return nil, err
			}
			scptEntries = entries

		case "CODE":
			entries, err := decodeCodeTable(cr, r)
			if err != nil {
				return nil, err
			}
			rawScripts = entries

		case "SPRT":
			sprites, err := decodeSpriteTable(cr, r)
			if err != nil {
				return nil, err
			}
			form.Sprites = sprites

		default:
			traceUnknownChunk(logger, header.TagString(), header.Length)
			form.UnknownChunks = append(form.UnknownChunks, Chunk{Tag: header.Tag, Payload: payload})
		}
	}

	scripts, err := crossReferenceScripts(r, rawScripts, scptEntries)
	if err != nil {
		return nil, err
	}
	form.Scripts = scripts
	for i, s := range scripts {
		form.scriptIndexByName[s.Name] = i
	}

	return form, nil
}

func decodeStringTable(cr *Reader) ([]string, error) {
	return ReadList(cr, func(er *Reader) (string, error) {
		return er.ReadCString()
	})
}

func decodeVariableTable(cr *Reader, formReader *Reader) ([]VariableDefinition, error) {
	return ReadList(cr, func(er *Reader) (VariableDefinition, error) {
		nameRef, err := er.ReadU32()
		if err != nil {
			return VariableDefinition{}, err
		}
		name, err := formReader.ReadStringRefAt(nameRef)
		if err != nil {
			return VariableDefinition{}, err
		}
		varID, err := er.ReadU32()
		if err != nil {
			return VariableDefinition{}, err
		}
		scope, err := er.ReadU8()
		if err != nil {
			return VariableDefinition{}, err
		}
		return VariableDefinition{Name: name, VarId: VarId(varID), Scope: VarScope(scope)}, nil
	})
}

func decodeFunctionTable(cr *Reader, formReader *Reader) ([]FunctionDefinition, error) {
	return ReadList(cr, func(er *Reader) (FunctionDefinition, error) {
		nameRef, err := er.ReadU32()
		if err != nil {
			return FunctionDefinition{}, err
		}
		name, err := formReader.ReadStringRefAt(nameRef)
		if err != nil {
			return FunctionDefinition{}, err
		}
		isBuiltin, err := er.ReadU8()
		if err != nil {
			return FunctionDefinition{}, err
		}
		scriptIndex, err := er.ReadU32()
		if err != nil {
			return FunctionDefinition{}, err
		}
		return FunctionDefinition{Name: name, IsBuiltin: isBuiltin != 0, ScriptIndex: int(scriptIndex)}, nil
	})
}

func decodeScriptIdTable(cr *Reader, formReader *Reader) ([]scptEntry, error) {
	return ReadList(cr, func(er *Reader) (scptEntry, error) {
		nameRef, err := er.ReadU32()
		if err != nil {
			return scptEntry{}, err
		}
		name, err := formReader.ReadStringRefAt(nameRef)
		if err != nil {
			return scptEntry{}, err
		}
		id, err := er.ReadU32()
		if err != nil {
			return scptEntry{}, err
		}
		return scptEntry{name: name, id: id}, nil
	})
}

func decodeCodeTable(cr *Reader, formReader *Reader) ([]scriptEntry, error) {
	return ReadList(cr, func(er *Reader) (scriptEntry, error) {
		nameRef, err := er.ReadU32()
		if err != nil {
			return scriptEntry{}, err
		}
		codeOffset, err := er.ReadU32()
		if err != nil {
			return scriptEntry{}, err
		}
		codeLength, err := er.ReadU32()
		if err != nil {
			return scriptEntry{}, err
		}
		_ = formReader
		return scriptEntry{nameRef: nameRef, codeOffset: codeOffset, codeLength: codeLength}, nil
	})
}

func decodeSpriteTable(cr *Reader, formReader *Reader) ([]SpriteDefinition, error) {
	return ReadList(cr, func(er *Reader) (SpriteDefinition, error) {
		nameRef, err := er.ReadU32()
		if err != nil {
			return SpriteDefinition{}, err
		}
		name, err := formReader.ReadStringRefAt(nameRef)
		if err != nil {
			return SpriteDefinition{}, err
		}
		width, err := er.ReadU32()
		if err != nil {
			return SpriteDefinition{}, err
		}
		height, err := er.ReadU32()
		if err != nil {
			return SpriteDefinition{}, err
		}
		textureCount, err := er.ReadU32()
		if err != nil {
			return SpriteDefinition{}, err
		}
		return SpriteDefinition{Name: name, Width: width, Height: height, TextureCount: textureCount}, nil
	})
}

// crossReferenceScripts joins CODE entries (offset/length into the form
// buffer) with SCPT entries (name/id) by name, per spec.md §4.2, then
// decodes each script's block stream out of the form-relative byte range.
// A CODE entry with no matching SCPT row keeps Script.Id at its zero value
// rather than failing decode — SCPT coverage of CODE is not guaranteed by
// the container format, only the reverse (original_source/main.cpp's walk
// tolerates SCPT-less scripts the same way).
func crossReferenceScripts(formReader *Reader, rawScripts []scriptEntry, scptEntries []scptEntry) ([]Script, error) {
	idByName := make(map[string]uint32, len(scptEntries))
	for _, e := range scptEntries {
		idByName[e.name] = e.id
	}

	scripts := make([]Script, 0, len(rawScripts))
	for _, raw := range rawScripts {
		name, err := formReader.ReadStringRefAt(raw.nameRef)
		if err != nil {
			return nil, err
		}

		cursor := formReader.Clone()
		if err := cursor.Seek(raw.codeOffset); err != nil {
			return nil, err
		}

		numBlocks := raw.codeLength / 4
		blocks := make([]Block, numBlocks)
		for i := range blocks {
			w, err := cursor.ReadU32()
			if err != nil {
				return nil, err
			}
			blocks[i] = Block(w)
		}

		scripts = append(scripts, Script{Name: name, Id: idByName[name], Code: blocks})
	}
	return scripts, nil
}
