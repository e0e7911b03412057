package httpsig

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/psd2/qcert/internal/qcerr"
)

func stdBase64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func stdBase64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Algorithm identifies a signature algorithm name as it appears in the
// Signature header's algorithm parameter (spec §4.7).
type Algorithm string

const (
	AlgRSASHA256 Algorithm = "rsa-sha256"
	AlgRSASHA512 Algorithm = "rsa-sha512"
	AlgHS2019    Algorithm = "hs2019"
)

// pseudo-header names recognized inside the headers parameter.
const (
	pseudoRequestTarget = "(request-target)"
	pseudoCreated       = "(created)"
	pseudoExpires       = "(expires)"
)

// DefaultHeaders is the header list used when a Signature omits the headers
// parameter, per the draft-cavage default: just "(created)".
var DefaultHeaders = []string{pseudoCreated}

// Signature is a parsed Signature header (spec §4.7).
type Signature struct {
	KeyID     string
	Algorithm Algorithm
	Created   int64 // unix seconds, 0 if absent
	Expires   int64 // unix seconds, 0 if absent
	Headers   []string
	Value     []byte // decoded signature bytes
}

// ParseSignature parses a Signature (or Authorization-scheme) header value
// of the form `keyId="...",algorithm="...",created=...,expires=...,headers="...",signature="..."`.
func ParseSignature(header string) (Signature, error) {
	params, err := splitParams(header)
	if err != nil {
		return Signature{}, err
	}

	sig := Signature{}
	if v, ok := params["keyid"]; ok {
		sig.KeyID = v
	} else {
		return Signature{}, qcerr.New(qcerr.KindMissingSignature, "Signature header missing keyId parameter")
	}
	if v, ok := params["algorithm"]; ok {
		sig.Algorithm = Algorithm(strings.ToLower(v))
	} else {
		return Signature{}, qcerr.New(qcerr.KindMissingSignature, "Signature header missing algorithm parameter")
	}
	if v, ok := params["created"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Signature{}, qcerr.Wrap(qcerr.KindMissingSignature, err, "Signature header has malformed created parameter")
		}
		sig.Created = n
	}
	if v, ok := params["expires"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Signature{}, qcerr.Wrap(qcerr.KindMissingSignature, err, "Signature header has malformed expires parameter")
		}
		sig.Expires = n
	}
	if v, ok := params["headers"]; ok {
		sig.Headers = strings.Fields(strings.ToLower(v))
	} else {
		sig.Headers = DefaultHeaders
	}
	v, ok := params["signature"]
	if !ok {
		return Signature{}, qcerr.New(qcerr.KindMissingSignature, "Signature header missing signature parameter")
	}
	decoded, err := stdBase64Decode(v)
	if err != nil {
		return Signature{}, qcerr.Wrap(qcerr.KindMissingSignature, err, "Signature header signature parameter is not valid base64")
	}
	sig.Value = decoded
	return sig, nil
}

// Header renders s back into a Signature header value.
func (s Signature) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, `keyId="%s",algorithm="%s"`, s.KeyID, s.Algorithm)
	if s.Created != 0 {
		fmt.Fprintf(&b, `,created=%d`, s.Created)
	}
	if s.Expires != 0 {
		fmt.Fprintf(&b, `,expires=%d`, s.Expires)
	}
	fmt.Fprintf(&b, `,headers="%s"`, strings.Join(s.Headers, " "))
	fmt.Fprintf(&b, `,signature="%s"`, stdBase64Encode(s.Value))
	return b.String()
}

// splitParams parses the comma-separated key="value" (or key=value for
// numeric params) list used by the Signature header.
func splitParams(header string) (map[string]string, error) {
	out := make(map[string]string)
	rest := strings.TrimSpace(header)
	for len(rest) > 0 {
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return nil, qcerr.New(qcerr.KindMissingSignature, "malformed Signature header parameter")
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]
		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return nil, qcerr.New(qcerr.KindMissingSignature, "unterminated quoted value in Signature header")
			}
			value = rest[1 : 1+end]
			rest = rest[1+end+1:]
		} else {
			comma := strings.Index(rest, ",")
			if comma < 0 {
				value = rest
				rest = ""
			} else {
				value = rest[:comma]
				rest = rest[comma:]
			}
		}
		out[key] = value
		rest = strings.TrimPrefix(strings.TrimSpace(rest), ",")
		rest = strings.TrimSpace(rest)
	}
	return out, nil
}

// SigningString builds the canonical string to sign/verify per spec §4.7:
// each listed header (or pseudo-header) contributes a "name: value" line,
// joined with "\n", no trailing newline. method and URL form the
// (request-target) pseudo-header as "<lower-method> <path-and-query>".
func SigningString(headers []string, req *http.Request, created, expires int64) (string, error) {
	lines := make([]string, 0, len(headers))
	for _, h := range headers {
		switch h {
		case pseudoRequestTarget:
			lines = append(lines, fmt.Sprintf("%s: %s %s", pseudoRequestTarget, strings.ToLower(req.Method), req.URL.RequestURI()))
		case pseudoCreated:
			if created == 0 {
				return "", qcerr.New(qcerr.KindMissingSignature, "(created) listed but no created value available")
			}
			lines = append(lines, fmt.Sprintf("%s: %d", pseudoCreated, created))
		case pseudoExpires:
			if expires == 0 {
				return "", qcerr.New(qcerr.KindMissingSignature, "(expires) listed but no expires value available")
			}
			lines = append(lines, fmt.Sprintf("%s: %d", pseudoExpires, expires))
		default:
			values := req.Header.Values(http.CanonicalHeaderKey(h))
			if len(values) == 0 {
				return "", qcerr.New(qcerr.KindMissingSignature, "signed header not present in request: "+h)
			}
			lines = append(lines, fmt.Sprintf("%s: %s", h, strings.Join(values, ", ")))
		}
	}
	return strings.Join(lines, "\n"), nil
}
