/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.*/

// Package hash computes the fingerprints the orchestrator keys its
// build cache on: a node's identity plus its canonicalized parameters
// plus its inputs' fingerprints, per §4.9's at-most-once-per-fingerprint
// build contract.
package hash

import (
	"encoding/gob"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable hex digest for object. Gob encoding is
// tried first since it round-trips every ordinary struct deterministically;
// values that gob rejects (NaN float fields, unexported-only structs) fall
// back to a sorted-key spew dump so the cache still has something stable to
// key on rather than erroring the whole build out.
func Fingerprint(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return sum([]byte(s.String()))
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 with a nil key never errors; guarded for completeness.
		panic(err)
	}
	e := gob.NewEncoder(h)
	if err := e.Encode(object); err == nil {
		return fmt.Sprintf("%x", h.Sum(nil))
	}
	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		SpewKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	h.Reset()
	printer.Fprintf(h, "%#v", object)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Combine folds a node kind name and a list of already-computed upstream
// fingerprints into one fingerprint, the orchestrator's node = f(kind,
// params, inputs...) rule from §4.9.
func Combine(parts ...string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func sum(b []byte) string {
	d := blake2b.Sum256(b)
	return fmt.Sprintf("%x", d)
}
