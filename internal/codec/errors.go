package codec

import "errors"

// ErrDecode is the sentinel wrapped by every payload decode failure: a
// malformed magic prefix, a truncated field, or an unrecognized command
// tag. Callers should errors.Is against it rather than match messages.
var ErrDecode = errors.New("codec: malformed payload")
