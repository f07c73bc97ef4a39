package metadata

import (
	"errors"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidURI is returned when a URI does not carry a content hash.
var ErrInvalidURI = errors.New("invalid content uri")

// NormalizeHash extracts the content hash from one of:
//
//	ipfs://<cid>[/path]
//	https://<gateway>/ipfs/<cid>[/path]
//	https://<cid>.ipfs.<gateway>[/path]
//	<cid>[/path]
//
// The returned key keeps any sub-path so distinct files under one
// directory CID cache separately.
func NormalizeHash(uri string) (string, error) {
	s := strings.TrimSpace(uri)
	if s == "" {
		return "", ErrInvalidURI
	}

	var rest string
	switch {
	case strings.HasPrefix(strings.ToLower(s), "http://"), strings.HasPrefix(strings.ToLower(s), "https://"):
		u, err := url.Parse(s)
		if err != nil {
			return "", ErrInvalidURI
		}
		if i := strings.Index(u.Path, "/ipfs/"); i >= 0 {
			rest = u.Path[i+len("/ipfs/"):]
		} else if host := strings.ToLower(u.Hostname()); strings.Contains(host, ".ipfs.") {
			rest = host[:strings.Index(host, ".ipfs.")] + u.Path
		} else {
			return "", ErrInvalidURI
		}
	case strings.Contains(s, "://"):
		rest = s[strings.Index(s, "://")+3:]
		rest = strings.TrimPrefix(rest, "ipfs/")
	default:
		rest = strings.TrimPrefix(s, "/ipfs/")
	}

	rest = strings.Trim(rest, "/")
	cid, path, _ := strings.Cut(rest, "/")
	if !ValidCID(cid) {
		return "", ErrInvalidURI
	}
	if path != "" {
		return cid + "/" + path, nil
	}
	return cid, nil
}

// ValidCID reports whether s is a CIDv0 (base58 sha2-256 multihash) or a
// base32 CIDv1.
func ValidCID(s string) bool {
	switch {
	case len(s) == 46 && strings.HasPrefix(s, "Qm"):
		raw, err := base58.Decode(s)
		if err != nil {
			return false
		}
		return len(raw) == 34 && raw[0] == 0x12 && raw[1] == 0x20
	case len(s) >= 50 && s[0] == 'b':
		for _, r := range s[1:] {
			if !(r >= 'a' && r <= 'z') && !(r >= '2' && r <= '7') {
				return false
			}
		}
		return true
	default:
		return false
	}
}
