// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package obj

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// encoder builds the byte representation of a unit.
type encoder struct {
	header header

	funcs []function

	// Used to build the strings section
	// efficiently. This state is managed
	// by AddString.
	strings       []string
	stringOffset  uint32
	stringOffsets map[string]uint32
}

type function struct {
	name       uint32
	kind       uint32
	codeOffset uint32
	codeLength uint32
}

// AddString appends the string to the strings section,
// returning its offset. Strings are deduplicated.
func (e *encoder) AddString(s string) uint32 {
	offset, ok := e.stringOffsets[s]
	if ok {
		return offset
	}

	offset = e.stringOffset
	e.strings = append(e.strings, s)
	e.stringOffsets[s] = offset

	// Length prefix plus data, padded to 32 bits.
	e.stringOffset += 4 + uint32(len(s)+3)&^3

	return offset
}

// Encode serialises the unit.
func Encode(unit *Unit) ([]byte, error) {
	arch, err := ToArch(unit.Arch)
	if err != nil {
		return nil, fmt.Errorf("obj: %v", err)
	}

	e := &encoder{
		stringOffsets: make(map[string]uint32),
	}

	// The unit name is added first so its offset
	// fits the header's 16-bit field.
	name := e.AddString(unit.Name)
	if name > 0xffff {
		return nil, fmt.Errorf("obj: unit name offset %d does not fit in the header", name)
	}

	var codeOffset uint32
	for _, fn := range unit.Funcs {
		if len(fn.Code)%4 != 0 {
			return nil, fmt.Errorf("obj: function %s has %d bytes of code, which is not a whole number of instructions", fn.Name, len(fn.Code))
		}

		e.funcs = append(e.funcs, function{
			name:       e.AddString(fn.Name),
			kind:       e.AddString(fn.Kind),
			codeOffset: codeOffset,
			codeLength: uint32(len(fn.Code)),
		})

		codeOffset += uint32(len(fn.Code))
	}

	e.header = header{
		Magic:        magic,
		Architecture: arch,
		Version:      version,
		UnitName:     uint16(name),

		FuncsOffset: headerSize,
	}
	e.header.StringsOffset = e.header.FuncsOffset + funcSize*uint32(len(e.funcs))
	e.header.CodeOffset = e.header.StringsOffset + e.stringOffset
	e.header.ChecksumOffset = e.header.CodeOffset + codeOffset

	b := cryptobyte.NewBuilder(make([]byte, 0, e.header.ChecksumOffset+ChecksumLength))

	b.AddUint32(e.header.Magic)
	b.AddUint8(uint8(e.header.Architecture))
	b.AddUint8(e.header.Version)
	b.AddUint16(e.header.UnitName)
	b.AddUint32(e.header.FuncsOffset)
	b.AddUint32(e.header.StringsOffset)
	b.AddUint32(e.header.CodeOffset)
	b.AddUint32(e.header.ChecksumOffset)

	for _, fn := range e.funcs {
		b.AddUint32(fn.name)
		b.AddUint32(fn.kind)
		b.AddUint32(fn.codeOffset)
		b.AddUint32(fn.codeLength)
	}

	for _, s := range e.strings {
		b.AddUint32(uint32(len(s)))
		b.AddBytes([]byte(s))
		for pad := (4 - len(s)%4) % 4; pad > 0; pad-- {
			b.AddUint8(0)
		}
	}

	for _, fn := range unit.Funcs {
		b.AddBytes(fn.Code)
	}

	data, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("obj: failed to encode unit: %v", err)
	}

	sum := sha256.Sum256(data)

	return append(data, sum[:]...), nil
}
