// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"fmt"
	"testing"

	"github.com/lewurm/opal/lir"
	"github.com/lewurm/opal/sys"
)

// encodeElements renders a logical element sequence as array
// bytes: one byte per element for byte arrays, two
// little-endian bytes for char arrays.
func encodeElements(kind lir.Kind, elements []uint16) []byte {
	if kind == lir.KindByte {
		data := make([]byte, len(elements))
		for i, e := range elements {
			data[i] = byte(e)
		}
		return data
	}

	data := make([]byte, 2*len(elements))
	for i, e := range elements {
		data[2*i] = byte(e)
		data[2*i+1] = byte(e >> 8)
	}
	return data
}

// refCompare is the reference semantics: the difference of
// the first differing elements, or the difference of the
// element counts when one sequence is a prefix of the other.
func refCompare(a, b []uint16) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// simulateArrayCompare lowers a lexicographic comparison of
// first (kind1) against second (kind2), runs it in the
// simulator and returns the signed result. When the
// descriptor canonicalised a char/byte comparison, the
// operand bindings are swapped to match.
func simulateArrayCompare(t *testing.T, kind1, kind2 lir.Kind, first, second []uint16, baseOffset int64, tuning Tuning) int32 {
	t.Helper()

	op, err := lir.NewArrayCompare(kind1, kind2, baseOffset, baseOffset)
	if err != nil {
		t.Fatalf("NewArrayCompare(): %v", err)
	}

	alloc, err := lir.Allocate(sys.AArch64, op)
	if err != nil {
		t.Fatalf("Allocate(): %v", err)
	}

	s := NewStream()
	if err := LowerArrayCompare(s, op, alloc, tuning); err != nil {
		t.Fatalf("LowerArrayCompare(): %v", err)
	}

	data1 := encodeElements(kind1, first)
	data2 := encodeElements(kind2, second)
	if op.Swapped {
		data1, data2 = data2, data1
	}

	const addr1, addr2 = 2048, 16384
	m := &machine{mem: make([]byte, 32768)}
	copy(m.mem[addr1+op.BaseOffset1:], data1)
	copy(m.mem[addr2+op.BaseOffset2:], data2)

	m.wx(op.Array1(alloc), 64, addr1)
	m.wx(op.Array2(alloc), 64, addr2)
	m.wx(op.Length1(alloc), 64, uint64(len(data1)))
	m.wx(op.Length2(alloc), 64, uint64(len(data2)))

	if err := m.run(s); err != nil {
		t.Fatalf("run(): %v", err)
	}

	return int32(m.rx(op.Result(alloc), 32))
}

// elementsPattern builds a deterministic sequence whose
// values stay within the narrower of the two encodings.
func elementsPattern(n int, wide bool, seed int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(i*37+seed) & 0xff
		if wide {
			out[i] = uint16(i*299+seed) & 0x7fff
		}
	}
	return out
}

// bump returns a copy of values with the element at pos
// changed by delta, wrapping within the encoding so the value
// survives encodeElements unchanged.
func bump(values []uint16, pos int, delta uint16, wide bool) []uint16 {
	out := append([]uint16(nil), values...)
	out[pos] += delta
	if !wide {
		out[pos] &= 0xff
	}
	return out
}

func TestArrayCompareMatchesReference(t *testing.T) {
	encodings := []struct {
		kind1, kind2 lir.Kind
	}{
		{lir.KindByte, lir.KindByte},
		{lir.KindChar, lir.KindChar},
		{lir.KindByte, lir.KindChar},
		{lir.KindChar, lir.KindByte},
	}
	tunings := []Tuning{
		{SIMDThreshold: 32, UseSIMD: true},
		{SIMDThreshold: 64, UseSIMD: true},
		{SIMDThreshold: 8192, UseSIMD: true},
		{SIMDThreshold: 32, UseSIMD: false},
	}
	lengths := []int{0, 1, 2, 3, 7, 8, 9, 15, 16, 17, 31, 32, 33, 48, 63, 64, 65, 100, 129, 500}

	for _, enc := range encodings {
		// Values must fit both encodings when they are mixed.
		wide := enc.kind1 == lir.KindChar && enc.kind2 == lir.KindChar

		for _, tuning := range tunings {
			for _, length := range lengths {
				name := fmt.Sprintf("%s-%s/threshold=%d,simd=%t/%d", enc.kind1, enc.kind2, tuning.SIMDThreshold, tuning.UseSIMD, length)

				base := elementsPattern(length, wide, 5)

				check := func(scenario string, first, second []uint16) {
					got := simulateArrayCompare(t, enc.kind1, enc.kind2, first, second, 0, tuning)
					want := refCompare(first, second)
					if int(got) != want {
						t.Errorf("%s: %s: got %d, want %d", name, scenario, got, want)
					}
				}

				check("equal arrays", base, base)

				if length > 0 {
					// One array a strict prefix of the other.
					check("first shorter", base[:length/2], base)
					check("second shorter", base, base[:length/2])

					// A mismatch at the start, middle and end.
					for _, pos := range []int{0, length / 2, length - 1} {
						changed := bump(base, pos, 3, wide)
						check(fmt.Sprintf("mismatch at %d", pos), base, changed)
						check(fmt.Sprintf("mismatch at %d, reversed", pos), changed, base)
					}
				}
			}
		}
	}
}

// Mixed-encoding comparisons must see differences in the high
// byte of a char element, which has no counterpart in the
// byte array.
func TestArrayCompareWideValues(t *testing.T) {
	tuning := Tuning{SIMDThreshold: 32, UseSIMD: true}

	for _, length := range []int{1, 16, 33, 64} {
		bytes := elementsPattern(length, false, 9)
		chars := append([]uint16(nil), bytes...)
		chars[length-1] |= 0x4b00

		got := simulateArrayCompare(t, lir.KindByte, lir.KindChar, bytes, chars, 0, tuning)
		want := refCompare(bytes, chars)
		if int(got) != want {
			t.Errorf("byte-char, length %d: got %d, want %d", length, got, want)
		}

		got = simulateArrayCompare(t, lir.KindChar, lir.KindByte, chars, bytes, 0, tuning)
		want = refCompare(chars, bytes)
		if int(got) != want {
			t.Errorf("char-byte, length %d: got %d, want %d", length, got, want)
		}
	}
}

// The mismatch position recovery must find the right lane for
// every position inside a vector chunk.
func TestArrayCompareEveryLane(t *testing.T) {
	tuning := Tuning{SIMDThreshold: 32, UseSIMD: true}

	for _, enc := range []struct {
		kind1, kind2 lir.Kind
	}{
		{lir.KindByte, lir.KindByte},
		{lir.KindChar, lir.KindChar},
		{lir.KindByte, lir.KindChar},
		{lir.KindChar, lir.KindByte},
	} {
		const length = 64
		wide := enc.kind1 == lir.KindChar && enc.kind2 == lir.KindChar
		base := elementsPattern(length, false, 13)

		for pos := 0; pos < length; pos++ {
			changed := bump(base, pos, 7, wide)

			got := simulateArrayCompare(t, enc.kind1, enc.kind2, base, changed, 0, tuning)
			want := refCompare(base, changed)
			if int(got) != want {
				t.Errorf("%s-%s: mismatch at element %d: got %d, want %d", enc.kind1, enc.kind2, pos, got, want)
			}
		}
	}
}

func TestArrayCompareBaseOffset(t *testing.T) {
	tuning := Tuning{SIMDThreshold: 32, UseSIMD: true}

	base := elementsPattern(40, false, 1)
	changed := bump(base, 39, 2, false)

	got := simulateArrayCompare(t, lir.KindByte, lir.KindByte, base, changed, 16, tuning)
	if want := refCompare(base, changed); int(got) != want {
		t.Errorf("got %d, want %d", got, want)
	}
}
