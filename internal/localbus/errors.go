package localbus

import "errors"

var errInvalidFingerprintLength = errors.New("localbus: fingerprint must decode to 32 bytes")

// ErrClosed is returned by port operations invoked after Close.
var ErrClosed = errors.New("localbus: port closed")
