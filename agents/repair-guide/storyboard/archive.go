package storyboard

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"
)

const crlf = "\r\n"

// Part is one body part of a multipart archive. Header names are lower-cased.
type Part struct {
	Header map[string]string
	Body   []byte
}

// ContentType returns the media type of the part without parameters.
func (p Part) ContentType() string {
	ct := p.Header["content-type"]
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ReadArchive splits a multipart/related archive into its body parts.
//
// The top-level header runs until the first blank line and must carry a
// Content-Type with a boundary parameter. The first line after it must be
// exactly "--{boundary}\r\n"; any other value fails with ErrBoundaryMismatch
// before the remaining bytes are looked at. A missing closing delimiter is
// tolerated and the archive then runs to the end of the data.
func ReadArchive(data []byte) ([]Part, error) {
	header, rest, ok := readHeaderBlock(data)
	if !ok {
		return nil, fmt.Errorf("%w: header block not terminated", ErrMissingBoundary)
	}
	boundary, ok := boundaryParam(header["content-type"])
	if !ok {
		return nil, ErrMissingBoundary
	}

	first, rest := cutLine(rest)
	if string(first) != "--"+boundary+crlf {
		return nil, fmt.Errorf("%w: got %q", ErrBoundaryMismatch, truncate(string(first), 80))
	}

	if end := bytes.Index(rest, []byte(crlf+"--"+boundary+"--")); end >= 0 {
		rest = rest[:end]
	}

	chunks := bytes.Split(rest, []byte(crlf+"--"+boundary+crlf))
	parts := make([]Part, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := readPart(chunk)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func readPart(chunk []byte) (Part, error) {
	header, body, ok := readHeaderBlock(chunk)
	if !ok {
		return Part{}, fmt.Errorf("%w: part header not terminated", ErrMalformedArchive)
	}
	decoded, err := decodeBody(body, header["content-transfer-encoding"])
	if err != nil {
		return Part{}, err
	}
	return Part{Header: header, Body: decoded}, nil
}

// readHeaderBlock consumes "Name: value" lines up to and including the first
// empty line. Lines starting with a space or tab continue the previous header.
func readHeaderBlock(data []byte) (map[string]string, []byte, bool) {
	header := make(map[string]string)
	var last string
	rest := data
	for len(rest) > 0 {
		line, next := cutLine(rest)
		rest = next
		text := strings.TrimRight(string(line), crlf)
		if text == "" {
			return header, rest, true
		}
		if (text[0] == ' ' || text[0] == '\t') && last != "" {
			header[last] += " " + strings.TrimSpace(text)
			continue
		}
		name, value, found := strings.Cut(text, ":")
		if !found {
			continue
		}
		last = strings.ToLower(strings.TrimSpace(name))
		header[last] = strings.TrimSpace(value)
	}
	return header, nil, false
}

// boundaryParam extracts boundary="..." (or an unquoted token) from a
// Content-Type value.
func boundaryParam(contentType string) (string, bool) {
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "boundary=")
	if idx < 0 {
		return "", false
	}
	value := contentType[idx+len("boundary="):]
	if strings.HasPrefix(value, `"`) {
		end := strings.IndexByte(value[1:], '"')
		if end < 0 {
			return "", false
		}
		value = value[1 : end+1]
	} else if end := strings.IndexAny(value, "; \t"); end >= 0 {
		value = value[:end]
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// cutLine splits data after the first "\n"; the line keeps its terminator.
func cutLine(data []byte) (line, rest []byte) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i+1], data[i+1:]
	}
	return data, nil
}

func decodeBody(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "binary", "7bit", "8bit":
		return body, nil
	case "base64":
		clean := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, body)
		out := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
		n, err := base64.StdEncoding.Decode(out, clean)
		if err != nil {
			return nil, fmt.Errorf("%w: base64 body: %v", ErrMalformedArchive, err)
		}
		return out[:n], nil
	case "quoted-printable":
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("%w: quoted-printable body: %v", ErrMalformedArchive, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported transfer encoding %q", ErrMalformedArchive, encoding)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
