// Package trust parses and verifies the signed trust manifest collaborator
// described in the format: a small XML document listing approved file paths
// and their BLAKE2s-256 digests, signed with Ed25519.
//
// Grounded on original_source/src/trust.rs's TrustManifest::parse_and_verify:
// same root element name and attributes, same per-file attribute names, same
// "verify signature before trusting any content" ordering. The event-level
// walk is expressed over this module's own xmlreader instead of speedy_xml.
package trust

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2s"

	"github.com/ftlman-go/modpatch/xmlreader"
)

// KeyID identifies a public key embedded in this binary.
type KeyID string

// KnownKeys maps a manifest's key attribute to the Ed25519 public key it
// names. Callers populate this (typically once, at startup) with the keys
// they're willing to trust; Parse consults it during verification.
var KnownKeys = map[KeyID]ed25519.PublicKey{}

// Manifest is a verified trust manifest: a signed set of approved file
// paths and their expected BLAKE2s-256 digests.
type Manifest struct {
	Version int
	KeyID   KeyID
	files   map[string][32]byte
}

// Digest returns the expected BLAKE2s-256 digest for path, and whether path
// is listed in the manifest at all.
func (m *Manifest) Digest(path string) (digestHex string, ok bool) {
	d, ok := m.files[path]
	if !ok {
		return "", false
	}
	return hex.EncodeToString(d[:]), true
}

// Verify reports whether content's BLAKE2s-256 digest matches the manifest
// entry for path. A path absent from the manifest never verifies.
func (m *Manifest) Verify(path string, content []byte) bool {
	want, ok := m.files[path]
	if !ok {
		return false
	}
	got := blake2s.Sum256(content)
	return got == want
}

// Parse parses manifestXML, verifies signatureHex (an Ed25519 signature, in
// hex, over the raw manifestXML bytes) against the key named by the
// manifest's key attribute, and returns the verified Manifest. Verification
// happens before any <file> entry is trusted, matching original_source's
// "establish trust, then read entries" ordering.
func Parse(manifestXML string, signatureHex string) (*Manifest, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("trust: failed to parse signature as hex: %w", err)
	}

	r := xmlreader.New(manifestXML, xmlreader.Options{AllowTopLevelText: true})

	var m *Manifest
	for {
		ev, err := r.Next()
		if xmlreader.IsEOF(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trust: %w", err)
		}

		switch ev.Kind {
		case xmlreader.Start, xmlreader.Empty:
			if m == nil {
				if ev.Name.Prefix != "" || ev.Name.Local != "trustManifest" {
					return nil, fmt.Errorf("trust: unexpected top-level element %q", ev.Name.String())
				}
				m, err = newRootManifest(ev)
				if err != nil {
					return nil, err
				}
				if err := verifySignature(m.KeyID, []byte(manifestXML), sig); err != nil {
					return nil, fmt.Errorf("trust: failed to establish trust: %w", err)
				}
				continue
			}
			if ev.Name.Local != "file" {
				return nil, fmt.Errorf("trust: unexpected element in manifest %q", ev.Name.String())
			}
			if err := addFile(m, ev); err != nil {
				return nil, err
			}
		case xmlreader.Text:
			if hasNonWhitespace(ev.Raw) {
				return nil, fmt.Errorf("trust: unexpected text content %q", ev.Raw)
			}
		case xmlreader.End:
			// Nesting beyond <trustManifest> isn't used; closing tags are
			// consumed and otherwise ignored.
		}
	}

	if m == nil {
		return nil, fmt.Errorf("trust: unexpected EOF before root element")
	}
	return m, nil
}

func hasNonWhitespace(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return true
		}
	}
	return false
}

func newRootManifest(ev xmlreader.Event) (*Manifest, error) {
	var version, key string
	var hasVersion, hasKey bool
	for _, a := range ev.Attr {
		switch a.Name.Local {
		case "version":
			version, hasVersion = a.Value(), true
		case "key":
			key, hasKey = a.Value(), true
		}
	}
	if !hasVersion {
		return nil, fmt.Errorf(`trust: missing "version" attribute`)
	}
	if !hasKey {
		return nil, fmt.Errorf(`trust: missing "key" attribute`)
	}
	if version != "1" {
		return nil, fmt.Errorf("trust: unknown manifest version %q", version)
	}
	return &Manifest{Version: 1, KeyID: KeyID(key), files: map[string][32]byte{}}, nil
}

func addFile(m *Manifest, ev xmlreader.Event) error {
	var path, digestHex string
	var hasPath, hasDigest bool
	for _, a := range ev.Attr {
		switch a.Name.Local {
		case "path":
			path, hasPath = a.Value(), true
		case "blake2s":
			digestHex, hasDigest = a.Value(), true
		}
	}
	if !hasPath {
		return fmt.Errorf(`trust: file tag missing "path" attribute`)
	}
	if !hasDigest {
		return fmt.Errorf(`trust: file tag missing "blake2s" attribute`)
	}
	raw, err := hex.DecodeString(digestHex)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf(`trust: failed to parse "blake2s" hash for %q`, path)
	}
	var digest [32]byte
	copy(digest[:], raw)
	m.files[path] = digest
	return nil
}

func verifySignature(key KeyID, manifestBytes, sig []byte) error {
	pub, ok := KnownKeys[key]
	if !ok {
		return fmt.Errorf("unknown key id %q", key)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("malformed signature")
	}
	if !ed25519.Verify(pub, manifestBytes, sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
