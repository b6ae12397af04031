// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package obj provides helpers to encode and decode compiled
// units. The result is similar to a traditional object file,
// holding the machine code of each lowered function.
//
// The format consists of a header, followed by a series of
// contiguous sections, then a cryptographic checksum:
//
//   - The functions section contains one fixed-size record per
//     function, referencing the strings and code sections.
//   - The strings section contains length-prefixed string data
//     used by the header and the functions section.
//   - The code section contains the machine code of each
//     function, referenced from the functions section.
//
// All integers are stored in big-endian form. Each section has
// a length that is an exact multiple of 32 bits.
//
// The header structure is described with the following
// pseudocode:
//
//	type Header struct {
//		Magic          uint32 // The magic value that identifies a unit file. (value: "opal")
//		Architecture   uint8  // The architecture the code targets.
//		Version        uint8  // The unit file format version.
//		UnitName       uint16 // The offset into the strings section where the unit name begins.
//
//		FuncsOffset    uint32 // The offset into the file where the functions section begins.
//		StringsOffset  uint32 // The offset into the file where the strings section begins.
//		CodeOffset     uint32 // The offset into the file where the code section begins.
//		ChecksumOffset uint32 // The offset into the file where the checksum begins.
//	}
//
// Each record in the functions section is described with the
// following pseudocode:
//
//	type Function struct {
//		Name       uint32 // The offset into the strings section where the function name begins.
//		Kind       uint32 // The offset into the strings section where the operation name begins.
//		CodeOffset uint32 // The offset into the code section where the machine code begins.
//		CodeLength uint32 // The length in bytes of the machine code.
//	}
//
// Each string is stored as a 32-bit length, followed by the
// string data, padded with zeros to a multiple of 32 bits.
//
// The checksum is the SHA-256 digest of everything before the
// checksum offset.
package obj

import (
	"fmt"

	"github.com/lewurm/opal/sys"
)

const (
	magic   uint32 = 0x6f70616c // "opal"
	version uint8  = 1

	headerSize = 24

	// ChecksumLength is the length in bytes of the checksum.
	ChecksumLength = 32

	funcSize = 16
)

// Arch identifies the architecture a unit's code targets.
type Arch uint8

const (
	ArchInvalid Arch = iota
	ArchAArch64
)

func (a Arch) String() string {
	switch a {
	case ArchAArch64:
		return "aarch64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// ToArch maps an architecture onto its unit file identifier.
func ToArch(arch *sys.Arch) (Arch, error) {
	switch arch {
	case sys.AArch64:
		return ArchAArch64, nil
	default:
		return ArchInvalid, fmt.Errorf("unsupported architecture: %v", arch)
	}
}

// SysArch maps a unit file architecture back onto the
// architecture it identifies.
func (a Arch) SysArch() (*sys.Arch, error) {
	switch a {
	case ArchAArch64:
		return sys.AArch64, nil
	default:
		return nil, fmt.Errorf("unsupported architecture: %v", a)
	}
}

// Unit is a compiled unit: a set of lowered functions for one
// architecture.
type Unit struct {
	Name  string
	Arch  *sys.Arch
	Funcs []Function
}

// Function is one lowered function.
type Function struct {
	Name string
	Kind string // The name of the operation the function implements.
	Code []byte
}

type header struct {
	Magic        uint32
	Architecture Arch
	Version      uint8
	UnitName     uint16

	FuncsOffset    uint32
	StringsOffset  uint32
	CodeOffset     uint32
	ChecksumOffset uint32
}
