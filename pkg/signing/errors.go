package signing

import "errors"

// ErrBadSignature is returned when a signature does not verify against the key.
var ErrBadSignature = errors.New("signature verification failed")
