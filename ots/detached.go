// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// headerMagic marks a detached timestamp proof file.
var headerMagic = []byte{
	0x00, 0x4f, 0x70, 0x65, 0x6e, 0x54, 0x69, 0x6d, 0x65, 0x73, 0x74,
	0x61, 0x6d, 0x70, 0x73, 0x00, 0x00, 0x50, 0x72, 0x6f, 0x6f, 0x66,
	0x00, 0xbf, 0x89, 0xe2, 0xe8, 0x84, 0xe8, 0x92, 0x94,
}

// majorVersion is the proof file format version this client reads and
// writes.
const majorVersion = 1

var (
	// ErrBadMagic is returned when a file is not a timestamp proof
	// file at all.
	ErrBadMagic = errors.New("not a timestamp file")

	// ErrUnsupportedVersion is returned for proof files written by a
	// newer format revision.
	ErrUnsupportedVersion = errors.New("unsupported timestamp file version")
)

// DetachedFile is a proof for the contents of a file stored separately
// from that file.  FileHashOp records how the file contents were digested
// into the proof's initial message.
type DetachedFile struct {
	FileHashOp HashOp
	Timestamp  *Timestamp
}

// NewDetachedFile builds a detached proof whose initial message is the
// digest of the provided digest bytes.
func NewDetachedFile(op HashOp, digest []byte) *DetachedFile {
	return &DetachedFile{
		FileHashOp: op,
		Timestamp:  NewTimestamp(digest),
	}
}

// NewDetachedFileFromReader digests an entire stream with op and returns
// the detached proof committing to it.
func NewDetachedFileFromReader(op HashOp, r io.Reader) (*DetachedFile, error) {
	digest, err := op.Hash(r)
	if err != nil {
		return nil, err
	}
	return NewDetachedFile(op, digest), nil
}

// FileDigest returns the digest of the file the proof commits to.
func (d *DetachedFile) FileDigest() []byte {
	return d.Timestamp.Msg
}

// Serialize writes the proof file encoding to w.
func (d *DetachedFile) Serialize(w io.Writer) error {
	var s serializer
	s.writeBytes(headerMagic)
	s.writeVaruint(majorVersion)
	serializeOp(&s, d.FileHashOp)
	s.writeBytes(d.Timestamp.Msg)
	if err := d.Timestamp.serialize(&s); err != nil {
		return err
	}
	_, err := w.Write(s.bytes())
	return err
}

// DeserializeFile reads a detached proof file from r.
func DeserializeFile(r io.Reader) (*DetachedFile, error) {
	d := newDeserializer(r)

	magic := make([]byte, len(headerMagic))
	if err := d.readFull(magic); err != nil {
		return nil, ErrBadMagic
	}
	if !bytes.Equal(magic, headerMagic) {
		return nil, ErrBadMagic
	}

	version, err := d.readVaruint()
	if err != nil {
		return nil, err
	}
	if version != majorVersion {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, version)
	}

	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	op, err := opFromTag(d, tag)
	if err != nil {
		return nil, err
	}
	hashOp, ok := op.(HashOp)
	if !ok {
		return nil, fmt.Errorf("%w: file hash operation %v is not a "+
			"hash", ErrMalformedProof, op)
	}

	digest := make([]byte, hashOp.DigestLength())
	if err := d.readFull(digest); err != nil {
		return nil, err
	}

	t, err := deserializeTimestamp(d, digest, maxRecursionDepth)
	if err != nil {
		return nil, err
	}

	return &DetachedFile{FileHashOp: hashOp, Timestamp: t}, nil
}
