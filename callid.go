package wireproto

// callid.go: short, URL-safe random identifiers for tagging log lines with
// a particular connection or context. Grounded on the teacher's own
// convention (hdr.go, rand.go) of base64url-encoding a handful of random
// bytes into a compact id rather than using a monotonic counter, via the
// same github.com/cristalhq/base64 encoder.

import (
	"crypto/rand"

	cristalbase64 "github.com/cristalhq/base64"
)

func newCallID() string {
	var b [9]byte
	_, _ = rand.Read(b[:])
	return cristalbase64.URLEncoding.EncodeToString(b[:])
}
