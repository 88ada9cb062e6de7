// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keyindex

import "errors"

// errOutOfCapacity is returned by Put/PutUnique when the index has
// reached MaxEntries. The caller (fixrow.Table) wraps this into its
// own OutOfCapacityError kind.
var errOutOfCapacity = errors.New("keyindex: index is at capacity")

// IsOutOfCapacity reports whether err is (or wraps) the capacity
// error returned by Put/PutUnique.
func IsOutOfCapacity(err error) bool {
	return errors.Is(err, errOutOfCapacity)
}
