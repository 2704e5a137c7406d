// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Serialization markers separating siblings in a proof node.
const (
	forkMarker        = 0xff
	attestationMarker = 0x00
)

// maxRecursionDepth bounds proof DAG depth during deserialization so a
// hostile proof cannot blow the stack.
const maxRecursionDepth = 256

var (
	// ErrMalformedProof is returned when a serialized proof violates the
	// format.
	ErrMalformedProof = errors.New("malformed proof")

	// ErrEmptyTimestamp is returned when serializing a node that carries
	// no attestations and no operations.  Such a node holds no
	// information and has no representation in the format.
	ErrEmptyTimestamp = errors.New("empty timestamp can't be serialized")

	// ErrRecursionLimit is returned when a proof nests deeper than the
	// deserializer allows.
	ErrRecursionLimit = errors.New("proof exceeds recursion limit")
)

// serializer accumulates the wire encoding of a proof.  Writes cannot fail;
// the caller flushes the result with bytes().
type serializer struct {
	buf bytes.Buffer
}

func (s *serializer) bytes() []byte {
	return s.buf.Bytes()
}

func (s *serializer) writeByte(b byte) {
	s.buf.WriteByte(b)
}

func (s *serializer) writeBytes(b []byte) {
	s.buf.Write(b)
}

// writeVaruint writes an unsigned integer in the format's base 128
// varint encoding.
func (s *serializer) writeVaruint(v uint64) {
	if v == 0 {
		s.writeByte(0x00)
		return
	}
	for v != 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		s.writeByte(b)
	}
}

// writeVarbytes writes a length prefixed byte string.
func (s *serializer) writeVarbytes(b []byte) {
	s.writeVaruint(uint64(len(b)))
	s.writeBytes(b)
}

type deserializer struct {
	r *bufio.Reader
}

func newDeserializer(r io.Reader) *deserializer {
	return &deserializer{r: bufio.NewReader(r)}
}

func (d *deserializer) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return b, nil
}

func (d *deserializer) readFull(b []byte) error {
	if _, err := io.ReadFull(d.r, b); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return nil
}

func (d *deserializer) readVaruint() (uint64, error) {
	var value uint64
	var shift uint
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, fmt.Errorf("%w: varuint overflow",
				ErrMalformedProof)
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return value, nil
}

func (d *deserializer) readVarbytes(minLen, maxLen int) ([]byte, error) {
	length, err := d.readVaruint()
	if err != nil {
		return nil, err
	}
	if length > uint64(maxLen) {
		return nil, fmt.Errorf("%w: varbytes length %v exceeds "+
			"maximum %v", ErrMalformedProof, length, maxLen)
	}
	if length < uint64(minLen) {
		return nil, fmt.Errorf("%w: varbytes length %v under "+
			"minimum %v", ErrMalformedProof, length, minLen)
	}
	b := make([]byte, length)
	if err := d.readFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// expectEOF ensures a nested payload was fully consumed.
func (d *deserializer) expectEOF() error {
	if _, err := d.r.ReadByte(); err != io.EOF {
		return fmt.Errorf("%w: trailing bytes", ErrMalformedProof)
	}
	return nil
}

// Serialize writes the canonical encoding of the proof node to w.  The
// node's message is not part of the encoding; it is implied by context (the
// parent operation, or the detached file header).
func (t *Timestamp) Serialize(w io.Writer) error {
	var s serializer
	if err := t.serialize(&s); err != nil {
		return err
	}
	_, err := w.Write(s.bytes())
	return err
}

// SerializeToBytes returns the canonical encoding of the proof node.
func (t *Timestamp) SerializeToBytes() ([]byte, error) {
	var s serializer
	if err := t.serialize(&s); err != nil {
		return nil, err
	}
	return s.bytes(), nil
}

func (t *Timestamp) serialize(s *serializer) error {
	if len(t.Attestations) == 0 && len(t.Ops) == 0 {
		return ErrEmptyTimestamp
	}

	attestations := make([]Attestation, len(t.Attestations))
	copy(attestations, t.Attestations)
	sort.SliceStable(attestations, func(i, j int) bool {
		return AttestationCompare(attestations[i], attestations[j]) < 0
	})

	// Every sibling but the very last is preceded by a fork marker;
	// attestations additionally carry the attestation marker to
	// distinguish them from operations.
	for i, a := range attestations {
		last := i == len(attestations)-1 && len(t.Ops) == 0
		if !last {
			s.writeByte(forkMarker)
		}
		s.writeByte(attestationMarker)
		serializeAttestation(s, a)
	}

	ops := make([]OpEntry, len(t.Ops))
	copy(ops, t.Ops)
	sort.SliceStable(ops, func(i, j int) bool {
		return OpCompare(ops[i].Op, ops[j].Op) < 0
	})

	for i, e := range ops {
		if i != len(ops)-1 {
			s.writeByte(forkMarker)
		}
		serializeOp(s, e.Op)
		if err := e.Stamp.serialize(s); err != nil {
			return err
		}
	}

	return nil
}

// DeserializeTimestamp reads a proof node committing to msg from r.
func DeserializeTimestamp(r io.Reader, msg []byte) (*Timestamp, error) {
	d := newDeserializer(r)
	return deserializeTimestamp(d, msg, maxRecursionDepth)
}

func deserializeTimestamp(d *deserializer, msg []byte, limit int) (*Timestamp, error) {
	if limit <= 0 {
		return nil, ErrRecursionLimit
	}
	if len(msg) > MaxMsgLength {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, ErrMsgTooLong)
	}

	t := NewTimestamp(msg)

	readSibling := func(tag byte) error {
		if tag == attestationMarker {
			a, err := deserializeAttestation(d)
			if err != nil {
				return err
			}
			t.AddAttestation(a)
			return nil
		}

		op, err := opFromTag(d, tag)
		if err != nil {
			return err
		}
		result, err := op.Apply(msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedProof, err)
		}
		child, err := deserializeTimestamp(d, result, limit-1)
		if err != nil {
			return err
		}
		return t.addOpStamp(op, child)
	}

	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	for tag == forkMarker {
		next, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if err := readSibling(next); err != nil {
			return nil, err
		}
		tag, err = d.readByte()
		if err != nil {
			return nil, err
		}
	}
	if err := readSibling(tag); err != nil {
		return nil, err
	}

	return t, nil
}
