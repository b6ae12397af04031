// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// decodeHeader reads and sanity-checks the header.
func decodeHeader(h *header, b []byte) error {
	if len(b) < headerSize {
		return fmt.Errorf("invalid unit header: %w", io.ErrUnexpectedEOF)
	}

	s := cryptobyte.String(b[:headerSize])

	var arch uint8
	if !s.ReadUint32(&h.Magic) ||
		!s.ReadUint8(&arch) ||
		!s.ReadUint8(&h.Version) ||
		!s.ReadUint16(&h.UnitName) ||
		!s.ReadUint32(&h.FuncsOffset) ||
		!s.ReadUint32(&h.StringsOffset) ||
		!s.ReadUint32(&h.CodeOffset) ||
		!s.ReadUint32(&h.ChecksumOffset) {
		return fmt.Errorf("obj: internal error: failed to read unit header: %w", io.ErrUnexpectedEOF)
	}

	h.Architecture = Arch(arch)

	if h.Magic != magic {
		return fmt.Errorf("invalid unit header: got magic %x, want %x", h.Magic, magic)
	}
	if h.Version != version {
		return fmt.Errorf("unsupported unit header: got version %d, but only %d is supported", h.Version, version)
	}
	if h.FuncsOffset != headerSize {
		return fmt.Errorf("invalid unit header: got functions offset %d, want %d", h.FuncsOffset, headerSize)
	}
	if h.StringsOffset < h.FuncsOffset || (h.StringsOffset-h.FuncsOffset)%funcSize != 0 {
		return fmt.Errorf("invalid unit header: got invalid strings offset %d", h.StringsOffset)
	}
	if h.CodeOffset < h.StringsOffset || h.CodeOffset%4 != 0 {
		return fmt.Errorf("invalid unit header: got invalid code offset %d", h.CodeOffset)
	}
	if h.ChecksumOffset < h.CodeOffset || (h.ChecksumOffset-h.CodeOffset)%4 != 0 {
		return fmt.Errorf("invalid unit header: got invalid checksum offset %d", h.ChecksumOffset)
	}
	if uint64(h.ChecksumOffset)+ChecksumLength != uint64(len(b)) {
		return fmt.Errorf("invalid unit header: got checksum offset %d in a %d-byte unit", h.ChecksumOffset, len(b))
	}
	if uint32(h.UnitName) >= h.CodeOffset-h.StringsOffset {
		return fmt.Errorf("invalid unit header: unit name offset %d is beyond the strings section", h.UnitName)
	}

	return nil
}

// Decode parses a unit, verifying its checksum.
func Decode(data []byte) (*Unit, error) {
	var h header
	if err := decodeHeader(&h, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data[:h.ChecksumOffset])
	if !bytes.Equal(sum[:], data[h.ChecksumOffset:]) {
		return nil, fmt.Errorf("invalid unit: checksum mismatch")
	}

	arch, err := h.Architecture.SysArch()
	if err != nil {
		return nil, fmt.Errorf("invalid unit: %v", err)
	}

	strings := data[h.StringsOffset:h.CodeOffset]
	readString := func(offset uint32) (string, error) {
		if offset >= uint32(len(strings)) {
			return "", fmt.Errorf("invalid unit: string offset %d is beyond the strings section", offset)
		}

		s := cryptobyte.String(strings[offset:])
		var length uint32
		var data []byte
		if !s.ReadUint32(&length) || !s.ReadBytes(&data, int(length)) {
			return "", fmt.Errorf("invalid unit: truncated string at offset %d", offset)
		}

		return string(data), nil
	}

	name, err := readString(uint32(h.UnitName))
	if err != nil {
		return nil, err
	}

	unit := &Unit{
		Name: name,
		Arch: arch,
	}

	code := data[h.CodeOffset:h.ChecksumOffset]
	funcs := cryptobyte.String(data[h.FuncsOffset:h.StringsOffset])
	for !funcs.Empty() {
		var fn function
		if !funcs.ReadUint32(&fn.name) ||
			!funcs.ReadUint32(&fn.kind) ||
			!funcs.ReadUint32(&fn.codeOffset) ||
			!funcs.ReadUint32(&fn.codeLength) {
			return nil, fmt.Errorf("obj: internal error: failed to read function record: %w", io.ErrUnexpectedEOF)
		}

		fnName, err := readString(fn.name)
		if err != nil {
			return nil, err
		}
		kind, err := readString(fn.kind)
		if err != nil {
			return nil, err
		}

		end := uint64(fn.codeOffset) + uint64(fn.codeLength)
		if end > uint64(len(code)) {
			return nil, fmt.Errorf("invalid unit: function %s has code at %d:%d, beyond the code section", fnName, fn.codeOffset, end)
		}

		unit.Funcs = append(unit.Funcs, Function{
			Name: fnName,
			Kind: kind,
			Code: bytes.Clone(code[fn.codeOffset:end]),
		})
	}

	return unit, nil
}
