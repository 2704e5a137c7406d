// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bytes"
	"fmt"
)

// Attestation tags.  Fixed by the OpenTimestamps proof format.
var (
	TagPending  = [8]byte{0x83, 0xdf, 0xe3, 0x0d, 0x2e, 0xf9, 0x0c, 0x8e}
	TagBitcoin  = [8]byte{0x05, 0x88, 0x96, 0x0d, 0x73, 0xd7, 0x19, 0x01}
	TagLitecoin = [8]byte{0x06, 0x86, 0x9a, 0x0d, 0x73, 0xd7, 0x1b, 0x45}
)

const (
	// MaxAttestationPayload is the maximum serialized attestation
	// payload accepted during deserialization.
	MaxAttestationPayload = 8192

	// MaxPendingURILength is the maximum calendar URI length in a
	// pending attestation.
	MaxPendingURILength = 1000
)

// Kind identifies an attestation variant.
type Kind int

// Attestation kinds.
const (
	KindUnknown Kind = iota
	KindPending
	KindBitcoin
	KindLitecoin
)

func (k Kind) String() string {
	switch k {
	case KindPending:
		return "pending"
	case KindBitcoin:
		return "bitcoin"
	case KindLitecoin:
		return "litecoin"
	default:
		return "unknown"
	}
}

// ComparableKinds are the attestation kinds with a best-to-worst order,
// i.e. those the pruning engine can select a single optimum for.
var ComparableKinds = []Kind{KindBitcoin, KindLitecoin}

// Attestation is an independent claim that a message is anchored.
type Attestation interface {
	// Kind returns the attestation variant.
	Kind() Kind

	// Tag returns the 8 byte serialization tag.
	Tag() [8]byte

	// String returns a human readable representation.
	String() string
}

// PendingAttestation is a provisional claim by a remote calendar that it
// will anchor the message.  It is not verifiable on its own.
type PendingAttestation struct {
	URI string
}

func (a PendingAttestation) Kind() Kind     { return KindPending }
func (a PendingAttestation) Tag() [8]byte   { return TagPending }
func (a PendingAttestation) String() string { return "pending " + a.URI }

// BitcoinAttestation anchors the message as the merkle root of the Bitcoin
// block at Height.
type BitcoinAttestation struct {
	Height uint64
}

func (a BitcoinAttestation) Kind() Kind   { return KindBitcoin }
func (a BitcoinAttestation) Tag() [8]byte { return TagBitcoin }
func (a BitcoinAttestation) String() string {
	return fmt.Sprintf("bitcoin block %v", a.Height)
}

// LitecoinAttestation anchors the message as the merkle root of the
// Litecoin block at Height.
type LitecoinAttestation struct {
	Height uint64
}

func (a LitecoinAttestation) Kind() Kind   { return KindLitecoin }
func (a LitecoinAttestation) Tag() [8]byte { return TagLitecoin }
func (a LitecoinAttestation) String() string {
	return fmt.Sprintf("litecoin block %v", a.Height)
}

// UnknownAttestation is an attestation this client cannot interpret.  It is
// preserved verbatim so that proofs round-trip losslessly.
type UnknownAttestation struct {
	RawTag  [8]byte
	Payload []byte
}

func (a UnknownAttestation) Kind() Kind   { return KindUnknown }
func (a UnknownAttestation) Tag() [8]byte { return a.RawTag }
func (a UnknownAttestation) String() string {
	return fmt.Sprintf("unknown attestation %x", a.RawTag)
}

// AttestationEqual returns whether two attestations make the same claim.
func AttestationEqual(a, b Attestation) bool {
	return AttestationCompare(a, b) == 0
}

// AttestationCompare defines a total order over attestations.  Variants
// order by serialization tag; within the chain header variants a lower
// block height sorts first because it is the earlier, more probative
// anchor.  Pending attestations order by URI only.
func AttestationCompare(a, b Attestation) int {
	at, bt := a.Tag(), b.Tag()
	if c := bytes.Compare(at[:], bt[:]); c != 0 {
		return c
	}

	switch a := a.(type) {
	case BitcoinAttestation:
		return compareHeights(a.Height, b.(BitcoinAttestation).Height)
	case LitecoinAttestation:
		return compareHeights(a.Height, b.(LitecoinAttestation).Height)
	case PendingAttestation:
		return bytes.Compare([]byte(a.URI),
			[]byte(b.(PendingAttestation).URI))
	case UnknownAttestation:
		return bytes.Compare(a.Payload, b.(UnknownAttestation).Payload)
	default:
		return 0
	}
}

func compareHeights(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// serializeAttestation writes the attestation tag and length prefixed
// payload.
func serializeAttestation(s *serializer, a Attestation) {
	tag := a.Tag()
	s.writeBytes(tag[:])

	var payload serializer
	switch a := a.(type) {
	case PendingAttestation:
		payload.writeVarbytes([]byte(a.URI))
	case BitcoinAttestation:
		payload.writeVaruint(a.Height)
	case LitecoinAttestation:
		payload.writeVaruint(a.Height)
	case UnknownAttestation:
		payload.writeBytes(a.Payload)
	}
	s.writeVarbytes(payload.bytes())
}

// deserializeAttestation reads one attestation.
func deserializeAttestation(d *deserializer) (Attestation, error) {
	var tag [8]byte
	if err := d.readFull(tag[:]); err != nil {
		return nil, err
	}
	payload, err := d.readVarbytes(0, MaxAttestationPayload)
	if err != nil {
		return nil, err
	}

	pd := newDeserializer(bytes.NewReader(payload))
	switch tag {
	case TagPending:
		uri, err := pd.readVarbytes(0, MaxPendingURILength)
		if err != nil {
			return nil, err
		}
		if err := pd.expectEOF(); err != nil {
			return nil, err
		}
		if err := checkPendingURI(string(uri)); err != nil {
			return nil, err
		}
		return PendingAttestation{URI: string(uri)}, nil
	case TagBitcoin:
		height, err := pd.readVaruint()
		if err != nil {
			return nil, err
		}
		if err := pd.expectEOF(); err != nil {
			return nil, err
		}
		return BitcoinAttestation{Height: height}, nil
	case TagLitecoin:
		height, err := pd.readVaruint()
		if err != nil {
			return nil, err
		}
		if err := pd.expectEOF(); err != nil {
			return nil, err
		}
		return LitecoinAttestation{Height: height}, nil
	default:
		return UnknownAttestation{RawTag: tag, Payload: payload}, nil
	}
}

// checkPendingURI rejects calendar URIs with characters outside the
// conservative set the proof format allows.
func checkPendingURI(uri string) error {
	for _, r := range uri {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_' || r == '/' || r == ':':
		default:
			return fmt.Errorf("%w: invalid character %q in "+
				"calendar URI", ErrMalformedProof, r)
		}
	}
	return nil
}
