// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

// Known serialization of a node holding a single pending attestation for
// https://a.example.com: attestation marker, 8 byte tag, varbytes payload
// wrapping the varbytes URI.
var pendingVector = append([]byte{
	0x00,
	0x83, 0xdf, 0xe3, 0x0d, 0x2e, 0xf9, 0x0c, 0x8e,
	0x16, 0x15,
}, []byte("https://a.example.com")...)

// Known serialization of a node holding a single bitcoin attestation for
// block 500000 (varuint a0 c2 1e).
var bitcoinVector = []byte{
	0x00,
	0x05, 0x88, 0x96, 0x0d, 0x73, 0xd7, 0x19, 0x01,
	0x03, 0xa0, 0xc2, 0x1e,
}

func TestSerializePendingVector(t *testing.T) {
	ts := NewTimestamp([]byte("msg"))
	ts.AddAttestation(PendingAttestation{URI: "https://a.example.com"})

	got, err := ts.SerializeToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pendingVector) {
		t.Fatalf("got %x want %x", got, pendingVector)
	}
}

func TestSerializeBitcoinVector(t *testing.T) {
	ts := NewTimestamp([]byte("msg"))
	ts.AddAttestation(BitcoinAttestation{Height: 500000})

	got, err := ts.SerializeToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bitcoinVector) {
		t.Fatalf("got %x want %x", got, bitcoinVector)
	}
}

func TestDeserializeVectors(t *testing.T) {
	ts, err := DeserializeTimestamp(bytes.NewReader(bitcoinVector),
		[]byte("msg"))
	if err != nil {
		t.Fatal(err)
	}
	if !ts.HasAttestation(BitcoinAttestation{Height: 500000}) {
		t.Fatal("bitcoin attestation lost")
	}
}

func TestSerializeEmpty(t *testing.T) {
	ts := NewTimestamp([]byte("msg"))
	if _, err := ts.SerializeToBytes(); err != ErrEmptyTimestamp {
		t.Fatalf("got %v want ErrEmptyTimestamp", err)
	}
}

func TestRoundTripForks(t *testing.T) {
	msg := []byte("root message")
	ts := NewTimestamp(msg)
	ts.AddAttestation(PendingAttestation{URI: "https://a.example.com"})
	ts.AddAttestation(UnknownAttestation{
		RawTag:  [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Payload: []byte{0xde, 0xad},
	})

	left := mustAdd(t, ts, NewOpAppend([]byte("left")))
	leftHash := mustAdd(t, left, NewOpSHA256())
	leftHash.AddAttestation(BitcoinAttestation{Height: 500000})

	right := mustAdd(t, ts, NewOpPrepend([]byte("right")))
	rightHash := mustAdd(t, right, NewOpRIPEMD160())
	rightHash.AddAttestation(LitecoinAttestation{Height: 123})

	var buf bytes.Buffer
	if err := ts.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	back, err := DeserializeTimestamp(&buf, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(back) {
		t.Fatalf("round trip mismatch:\nin:\n%v\nout:\n%v",
			ts.Dump(), back.Dump())
	}
}

func TestDetachedRoundTrip(t *testing.T) {
	content := []byte("file content")
	digest := sha256.Sum256(content)

	d, err := NewDetachedFileFromReader(NewOpSHA256(),
		bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d.FileDigest(), digest[:]) {
		t.Fatalf("file digest got %x want %x", d.FileDigest(), digest)
	}

	d.Timestamp.AddAttestation(PendingAttestation{
		URI: "https://a.example.com",
	})

	var buf bytes.Buffer
	if err := d.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	back, err := DeserializeFile(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.FileDigest(), digest[:]) {
		t.Fatalf("digest lost in round trip")
	}
	if !back.Timestamp.Equal(d.Timestamp) {
		t.Fatal("timestamp lost in round trip")
	}
	if back.FileHashOp.Tag() != OpTagSHA256 {
		t.Fatal("file hash op lost in round trip")
	}
}

func TestDeserializeBadMagic(t *testing.T) {
	if _, err := DeserializeFile(bytes.NewReader([]byte("not a proof"))); err != ErrBadMagic {
		t.Fatalf("got %v want ErrBadMagic", err)
	}
}

func TestDeserializeTruncated(t *testing.T) {
	ts := NewTimestamp([]byte("msg"))
	ts.AddAttestation(BitcoinAttestation{Height: 500000})
	raw, err := ts.SerializeToBytes()
	if err != nil {
		t.Fatal(err)
	}

	_, err = DeserializeTimestamp(bytes.NewReader(raw[:len(raw)-1]),
		[]byte("msg"))
	if err == nil {
		t.Fatal("expected error on truncated proof")
	}
}

func TestVaruintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 500000, 1 << 40} {
		var s serializer
		s.writeVaruint(v)
		d := newDeserializer(bytes.NewReader(s.bytes()))
		got, err := d.readVaruint()
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Fatalf("got %v want %v", got, v)
		}
	}
}
