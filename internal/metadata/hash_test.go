package metadata

import (
	"errors"
	"testing"
)

const (
	cidV0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	cidV1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func TestNormalizeHash(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"scheme", "ipfs://" + cidV0, cidV0},
		{"scheme with ipfs prefix", "ipfs://ipfs/" + cidV0, cidV0},
		{"scheme with path", "ipfs://" + cidV1 + "/meta.json", cidV1 + "/meta.json"},
		{"gateway path", "https://gateway.pinata.cloud/ipfs/" + cidV0, cidV0},
		{"gateway trailing slash", "https://ipfs.io/ipfs/" + cidV0 + "/", cidV0},
		{"subdomain gateway", "https://" + cidV1 + ".ipfs.dweb.link/", cidV1},
		{"bare", cidV0, cidV0},
		{"bare with spaces", "  " + cidV1 + "  ", cidV1},
		{"path prefix", "/ipfs/" + cidV0, cidV0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHash(tt.uri)
			if err != nil {
				t.Fatalf("NormalizeHash(%q): %v", tt.uri, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeHash(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestNormalizeHash_Invalid(t *testing.T) {
	for _, uri := range []string{
		"",
		"https://example.com/logo.png",
		"ipfs://not-a-cid",
		"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbd0", // '0' is not base58
		"bafyUPPERCASE",
	} {
		if _, err := NormalizeHash(uri); !errors.Is(err, ErrInvalidURI) {
			t.Errorf("NormalizeHash(%q) error = %v, want ErrInvalidURI", uri, err)
		}
	}
}
