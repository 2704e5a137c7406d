// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// Operation serialization tags.  These values are fixed by the
// OpenTimestamps proof format and must never change.
const (
	OpTagSHA1      = 0x02
	OpTagRIPEMD160 = 0x03
	OpTagSHA256    = 0x08
	OpTagKECCAK256 = 0x67
	OpTagAppend    = 0xf0
	OpTagPrepend   = 0xf1
	OpTagReverse   = 0xf2
	OpTagHexlify   = 0xf3
)

const (
	// MaxMsgLength is the maximum length of a message an operation may
	// be applied to.
	MaxMsgLength = 4096

	// MaxResultLength is the maximum length of an operation result.
	MaxResultLength = 4096
)

var (
	ErrMsgTooLong    = fmt.Errorf("message exceeds %v bytes", MaxMsgLength)
	ErrResultTooLong = fmt.Errorf("result exceeds %v bytes", MaxResultLength)
)

// Op is a deterministic transform of one byte sequence into another.  Ops
// label the edges of a proof DAG; two ops are interchangeable iff their tag
// and argument match.
type Op interface {
	// Tag returns the serialization tag of the operation.
	Tag() byte

	// Arg returns the operation argument, or nil for unary operations.
	Arg() []byte

	// Apply runs the operation on msg.
	Apply(msg []byte) ([]byte, error)

	// String returns a human readable representation of the operation.
	String() string
}

// HashOp is an Op that is a cryptographic hash function.
type HashOp interface {
	Op

	// DigestLength returns the length of the digest the operation
	// produces.
	DigestLength() int

	// Hash digests an entire stream.  This is how file contents are
	// committed without buffering them in memory.
	Hash(r io.Reader) ([]byte, error)
}

// OpEqual returns whether two operations are the same transform.
func OpEqual(a, b Op) bool {
	return a.Tag() == b.Tag() && bytes.Equal(a.Arg(), b.Arg())
}

// OpCompare defines a total order over operations, used for canonical
// serialization.  Ops order by tag, then by argument.
func OpCompare(a, b Op) int {
	if a.Tag() != b.Tag() {
		if a.Tag() < b.Tag() {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Arg(), b.Arg())
}

// OpCost is the serialized size proxy used when comparing proof paths: one
// byte for the tag plus the argument, if any.
func OpCost(op Op) int {
	return 1 + len(op.Arg())
}

func checkMsg(msg []byte) error {
	if len(msg) > MaxMsgLength {
		return ErrMsgTooLong
	}
	return nil
}

// OpAppend appends a fixed suffix to the message.
type OpAppend struct {
	arg []byte
}

// NewOpAppend returns an append operation with the provided suffix.
func NewOpAppend(arg []byte) OpAppend {
	return OpAppend{arg: arg}
}

func (op OpAppend) Tag() byte   { return OpTagAppend }
func (op OpAppend) Arg() []byte { return op.arg }

func (op OpAppend) Apply(msg []byte) ([]byte, error) {
	if err := checkMsg(msg); err != nil {
		return nil, err
	}
	if len(msg)+len(op.arg) > MaxResultLength {
		return nil, ErrResultTooLong
	}
	result := make([]byte, 0, len(msg)+len(op.arg))
	result = append(result, msg...)
	result = append(result, op.arg...)
	return result, nil
}

func (op OpAppend) String() string {
	return fmt.Sprintf("append %x", op.arg)
}

// OpPrepend prepends a fixed prefix to the message.
type OpPrepend struct {
	arg []byte
}

// NewOpPrepend returns a prepend operation with the provided prefix.
func NewOpPrepend(arg []byte) OpPrepend {
	return OpPrepend{arg: arg}
}

func (op OpPrepend) Tag() byte   { return OpTagPrepend }
func (op OpPrepend) Arg() []byte { return op.arg }

func (op OpPrepend) Apply(msg []byte) ([]byte, error) {
	if err := checkMsg(msg); err != nil {
		return nil, err
	}
	if len(msg)+len(op.arg) > MaxResultLength {
		return nil, ErrResultTooLong
	}
	result := make([]byte, 0, len(msg)+len(op.arg))
	result = append(result, op.arg...)
	result = append(result, msg...)
	return result, nil
}

func (op OpPrepend) String() string {
	return fmt.Sprintf("prepend %x", op.arg)
}

// OpReverse reverses the message.
type OpReverse struct{}

func (op OpReverse) Tag() byte   { return OpTagReverse }
func (op OpReverse) Arg() []byte { return nil }

func (op OpReverse) Apply(msg []byte) ([]byte, error) {
	if err := checkMsg(msg); err != nil {
		return nil, err
	}
	if len(msg) == 0 {
		return nil, fmt.Errorf("can't reverse empty message")
	}
	result := make([]byte, len(msg))
	for i, b := range msg {
		result[len(msg)-1-i] = b
	}
	return result, nil
}

func (op OpReverse) String() string { return "reverse" }

// OpHexlify hex encodes the message.
type OpHexlify struct{}

func (op OpHexlify) Tag() byte   { return OpTagHexlify }
func (op OpHexlify) Arg() []byte { return nil }

func (op OpHexlify) Apply(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("can't hexlify empty message")
	}
	if len(msg) > MaxResultLength/2 {
		return nil, ErrResultTooLong
	}
	return []byte(hex.EncodeToString(msg)), nil
}

func (op OpHexlify) String() string { return "hexlify" }

// cryptOp implements HashOp for a stdlib-style hash constructor.
type cryptOp struct {
	tag    byte
	length int
	name   string
	newh   func() hash.Hash
}

func (op cryptOp) Tag() byte         { return op.tag }
func (op cryptOp) Arg() []byte       { return nil }
func (op cryptOp) DigestLength() int { return op.length }
func (op cryptOp) String() string    { return op.name }

func (op cryptOp) Apply(msg []byte) ([]byte, error) {
	if err := checkMsg(msg); err != nil {
		return nil, err
	}
	h := op.newh()
	h.Write(msg)
	return h.Sum(nil), nil
}

func (op cryptOp) Hash(r io.Reader) ([]byte, error) {
	h := op.newh()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// OpSHA1 applies SHA1.  The 160 bit hashes are supported for proofs created
// by other implementations; new proofs use SHA256.
type OpSHA1 struct{ cryptOp }

// OpRIPEMD160 applies RIPEMD160.
type OpRIPEMD160 struct{ cryptOp }

// OpSHA256 applies SHA256.
type OpSHA256 struct{ cryptOp }

// OpKECCAK256 applies the legacy (pre-NIST) Keccak256.
type OpKECCAK256 struct{ cryptOp }

// NewOpSHA1 returns the SHA1 operation.
func NewOpSHA1() OpSHA1 {
	return OpSHA1{cryptOp{OpTagSHA1, sha1.Size, "sha1", sha1.New}}
}

// NewOpRIPEMD160 returns the RIPEMD160 operation.
func NewOpRIPEMD160() OpRIPEMD160 {
	return OpRIPEMD160{cryptOp{OpTagRIPEMD160, ripemd160.Size, "ripemd160",
		ripemd160.New}}
}

// NewOpSHA256 returns the SHA256 operation.
func NewOpSHA256() OpSHA256 {
	return OpSHA256{cryptOp{OpTagSHA256, sha256.Size, "sha256", sha256.New}}
}

// NewOpKECCAK256 returns the Keccak256 operation.
func NewOpKECCAK256() OpKECCAK256 {
	return OpKECCAK256{cryptOp{OpTagKECCAK256, 32, "keccak256",
		sha3.NewLegacyKeccak256}}
}

// opFromTag constructs the operation identified by tag, reading the
// argument for binary operations from d.
func opFromTag(d *deserializer, tag byte) (Op, error) {
	switch tag {
	case OpTagAppend:
		arg, err := d.readVarbytes(1, MaxResultLength)
		if err != nil {
			return nil, err
		}
		return NewOpAppend(arg), nil
	case OpTagPrepend:
		arg, err := d.readVarbytes(1, MaxResultLength)
		if err != nil {
			return nil, err
		}
		return NewOpPrepend(arg), nil
	case OpTagReverse:
		return OpReverse{}, nil
	case OpTagHexlify:
		return OpHexlify{}, nil
	case OpTagSHA1:
		return NewOpSHA1(), nil
	case OpTagRIPEMD160:
		return NewOpRIPEMD160(), nil
	case OpTagSHA256:
		return NewOpSHA256(), nil
	case OpTagKECCAK256:
		return NewOpKECCAK256(), nil
	default:
		return nil, fmt.Errorf("%w: unknown operation tag 0x%02x",
			ErrMalformedProof, tag)
	}
}

// serializeOp writes the operation tag and argument.
func serializeOp(s *serializer, op Op) {
	s.writeByte(op.Tag())
	if arg := op.Arg(); arg != nil {
		s.writeVarbytes(arg)
	}
}
