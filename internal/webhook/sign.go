package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// sign computes the HMAC-SHA256 signature of body under secret, following
// the teacher lineage's hmac.New(sha256.New, key) idiom (see
// Will-Luck-Docker-Sentinel's hmacToken). The signature is emitted as bare
// hex, per the Open Question resolved in SPEC_FULL.md's "SUPPLEMENTED
// FEATURES" item 1.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks a received signature against body, accepting either bare
// hex or a "sha256=" prefixed value so the dispatcher tolerates both of its
// own emission style and the more common GitHub-style convention some
// receivers expect on the wire. Comparison is constant-time.
func verify(secret, signature string, body []byte) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := sign(secret, body)

	expectedBytes, err1 := hex.DecodeString(expected)
	gotBytes, err2 := hex.DecodeString(signature)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(expectedBytes, gotBytes)
}
