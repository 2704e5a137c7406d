// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"io"
	"os"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// DigestFile returns the digest of a file under the provided hash
// operation.
func DigestFile(op ots.HashOp, filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return op.Hash(f)
}

// WriteFileExcl writes the serialized form produced by write to a new
// file, failing if the file already exists.  Proof files are never
// silently overwritten.
func WriteFileExcl(filename string, write func(w io.Writer) error) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL,
		0644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(filename)
		return err
	}
	return f.Close()
}

// BackupFile renames a proof file to its .bak companion before a rewrite.
// An existing backup is never overwritten.
func BackupFile(filename string) (string, error) {
	backup := filename + ".bak"
	if _, err := os.Stat(backup); err == nil {
		return "", fmt.Errorf("could not backup timestamp: %v "+
			"already exists", backup)
	}
	if err := os.Rename(filename, backup); err != nil {
		return "", fmt.Errorf("could not backup timestamp: %w", err)
	}
	return backup, nil
}

// IsFile determines if the provided filename points to a valid file.
func IsFile(filename string) bool {
	fi, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}
