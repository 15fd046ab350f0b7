// Package cuda binds the low-level CUDA driver context layer behind the
// cuda build tag. This is the layer an embedding framework pairs with its
// own high-level tensor runtime; the self-contained trellis worker uses the
// sim fabric instead. Binaries built without the tag get ErrUnavailable
// from every constructor.
package cuda

import "errors"

// ErrUnavailable means the binary was built without the cuda tag, or on a
// platform with no CUDA driver.
var ErrUnavailable = errors.New("cuda: driver unavailable in this build")
