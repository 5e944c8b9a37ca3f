package cidutil

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"xdao.co/ipfs-simple/storage"
)

const (
	knownCID    = "bafkreiepryq3bhkml44hrvioaszd5q56mufmctx4mnzxf5hozpmpfcr44m"
	knownDigest = "8f8e21b09d4c5f3878d50e04b23ec3be650ac14efc637372f4eecbd8f28a3ce3"
)

func TestIdentifierToDigest_KnownVector(t *testing.T) {
	got, err := IdentifierToDigest(knownCID)
	if err != nil {
		t.Fatalf("IdentifierToDigest: %v", err)
	}
	if got != knownDigest {
		t.Fatalf("digest mismatch: got %q want %q", got, knownDigest)
	}
}

func TestDigestToIdentifier_KnownVector(t *testing.T) {
	got, err := DigestToIdentifier(knownDigest)
	if err != nil {
		t.Fatalf("DigestToIdentifier: %v", err)
	}
	if got != knownCID {
		t.Fatalf("identifier mismatch: got %q want %q", got, knownCID)
	}
}

func TestDigestToIdentifier_MatchesCIDv1RawSHA256(t *testing.T) {
	data := []byte("hello")
	want := CIDv1RawSHA256(data)
	if want != "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq" {
		t.Fatalf("unexpected CID for %q: %s", data, want)
	}
	got, err := DigestToIdentifier("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if err != nil {
		t.Fatalf("DigestToIdentifier: %v", err)
	}
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDigestRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		d := hex.EncodeToString(b[:])
		id, err := DigestToIdentifier(d)
		if err != nil {
			t.Fatalf("DigestToIdentifier(%s): %v", d, err)
		}
		back, err := IdentifierToDigest(id)
		if err != nil {
			t.Fatalf("IdentifierToDigest(%s): %v", id, err)
		}
		if back != d {
			t.Fatalf("round trip: got %s want %s", back, d)
		}
		again, err := DigestToIdentifier(back)
		if err != nil {
			t.Fatalf("DigestToIdentifier(%s): %v", back, err)
		}
		if again != id {
			t.Fatalf("identifier round trip: got %s want %s", again, id)
		}
	}
}

func TestDigestToIdentifier_UpperCaseNormalized(t *testing.T) {
	got, err := DigestToIdentifier(strings.ToUpper(knownDigest))
	if err != nil {
		t.Fatalf("DigestToIdentifier: %v", err)
	}
	if got != knownCID {
		t.Fatalf("got %q want %q", got, knownCID)
	}
}

func TestDigestToIdentifier_RejectsLength(t *testing.T) {
	for _, in := range []string{"", "ab", knownDigest[:63], knownDigest + "0", knownDigest + knownDigest} {
		_, err := DigestToIdentifier(in)
		if !storage.IsKind(err, storage.KindInvalidDigestLength) {
			t.Fatalf("DigestToIdentifier(%q): got %v want InvalidDigestLength", in, err)
		}
	}
}

func TestDigestToIdentifier_RejectsEncoding(t *testing.T) {
	bad := "zz" + knownDigest[2:]
	_, err := DigestToIdentifier(bad)
	if !storage.IsKind(err, storage.KindInvalidDigestEncoding) {
		t.Fatalf("got %v want InvalidDigestEncoding", err)
	}
	_, err = DigestToIdentifier(strings.Repeat("g", DigestHexLen))
	if !storage.IsKind(err, storage.KindInvalidDigestEncoding) {
		t.Fatalf("got %v want InvalidDigestEncoding", err)
	}
}

func TestIdentifierToDigest_RejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "not-a-cid", "bafy", "Qm"} {
		_, err := IdentifierToDigest(in)
		if !storage.IsKind(err, storage.KindMalformedIdentifier) {
			t.Fatalf("IdentifierToDigest(%q): got %v want MalformedIdentifier", in, err)
		}
	}
}

func TestParseIdentifier(t *testing.T) {
	id, err := ParseIdentifier(" " + knownCID + "\n")
	if err != nil {
		t.Fatalf("ParseIdentifier: %v", err)
	}
	if id.String() != knownCID {
		t.Fatalf("got %s want %s", id, knownCID)
	}
}
