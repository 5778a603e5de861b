package zetro

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3 digest of a compiled layout or route table. Client
// and server exchange it to detect schema revision drift before any
// positional payload is misread.
type Fingerprint [32]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("zetro: bad fingerprint: %w", err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("zetro: bad fingerprint length %d", len(b))
	}
	copy(f[:], b)
	return f, nil
}

// Fingerprint digests every struct and enum layout in order. Byte-identical
// schema documents always produce equal fingerprints; reordering two fields
// changes it.
func (l *Layout) Fingerprint() Fingerprint {
	h := blake3.New()
	io.WriteString(h, "zetro/layout/1\n")
	digestLayout(h, l)
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// Fingerprint digests the layout plus every route binding. This is the value
// carried in the schema handshake header.
func (t *RouteTable) Fingerprint() Fingerprint {
	h := blake3.New()
	io.WriteString(h, "zetro/table/1\n")
	digestLayout(h, t.Layout)
	for _, r := range t.Routes {
		io.WriteString(h, "route\x00")
		digestString(h, r.Name)
		digestString(h, r.WireName)
		h.Write([]byte{byte(r.Kind)})
		digestString(h, r.Request.String())
		digestString(h, r.Response.String())
	}
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

func digestLayout(h *blake3.Hasher, l *Layout) {
	for _, s := range l.Structs {
		io.WriteString(h, "struct\x00")
		digestString(h, s.Name)
		for _, f := range s.Fields {
			digestString(h, f.Name)
			digestString(h, f.Type.String())
		}
	}
	for _, e := range l.Enums {
		io.WriteString(h, "enum\x00")
		digestString(h, e.Name)
		for _, v := range e.Variants {
			digestString(h, v)
		}
	}
}

// digestString writes a length-delimited string so adjacent names can never
// collide into the same byte stream.
func digestString(h *blake3.Hasher, s string) {
	fmt.Fprintf(h, "%d:", len(s))
	io.WriteString(h, s)
}
