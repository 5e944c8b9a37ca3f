package cidutil

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/ipfs-simple/storage"
)

const (
	// DigestHexLen is the length of a hex-encoded sha2-256 digest.
	DigestHexLen = 64

	// sha2-256 multihash header: function code 0x12, length 0x20.
	sha256Header = "1220"

	// A CIDv1 raw sha2-256 identifier is version, codec, hash code and
	// length (one byte each) followed by the 32 digest bytes.
	digestStart = 4
	digestEnd   = 36
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseIdentifier decodes a content identifier string.
func ParseIdentifier(s string) (cid.Cid, error) {
	id, err := cid.Decode(strings.TrimSpace(s))
	if err != nil || !id.Defined() {
		if err == nil {
			err = storage.ErrInvalidCID
		}
		return cid.Undef, &storage.Error{
			Kind:    storage.KindMalformedIdentifier,
			Op:      "parse identifier",
			Ref:     s,
			Message: "not a valid content identifier",
			Cause:   err,
		}
	}
	return id, nil
}

// IdentifierToDigest returns the hex-encoded digest carried by a CIDv1
// identifier: bytes [4:36) of its binary form.
func IdentifierToDigest(identifier string) (string, error) {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return "", err
	}
	b := id.Bytes()
	if len(b) < digestEnd {
		return "", storage.NewError(storage.KindMalformedIdentifier, "identifier to digest", identifier,
			fmt.Sprintf("identifier is %d bytes, want at least %d", len(b), digestEnd))
	}
	return hex.EncodeToString(b[digestStart:digestEnd]), nil
}

// DigestToIdentifier builds the CIDv1 raw sha2-256 identifier for a
// hex-encoded 32-byte digest.
func DigestToIdentifier(digest string) (string, error) {
	if len(digest) != DigestHexLen {
		return "", storage.NewError(storage.KindInvalidDigestLength, "digest to identifier", digest,
			fmt.Sprintf("digest is %d hex characters, want %d", len(digest), DigestHexLen))
	}
	raw, err := hex.DecodeString(sha256Header + digest)
	if err != nil {
		return "", &storage.Error{
			Kind:    storage.KindInvalidDigestEncoding,
			Op:      "digest to identifier",
			Ref:     digest,
			Message: "digest is not hex encoded",
			Cause:   err,
		}
	}
	mh, err := multihash.Cast(raw)
	if err != nil {
		return "", storage.WrapError(storage.KindInvalidDigestEncoding, "digest to identifier", digest, err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
