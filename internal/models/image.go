package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ImageBytes is an image payload. On the wire it is a JSON array of byte
// values, which is what the browser client sends and expects back. A base64
// string is also accepted on input.
type ImageBytes []byte

// MarshalJSON encodes the payload as an array of numbers.
func (b ImageBytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	out = append(out, ']')
	return out, nil
}

// UnmarshalJSON accepts an array of integers in [0, 255] or a base64 string.
func (b *ImageBytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	if data[0] == '"' {
		var raw []byte
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("image: invalid base64 payload: %w", err)
		}
		*b = raw
		return nil
	}

	if data[0] != '[' || data[len(data)-1] != ']' {
		return fmt.Errorf("image: expected array of bytes")
	}

	body := data[1 : len(data)-1]
	out := make([]byte, 0, len(body)/3)
	for len(body) > 0 {
		body = bytes.TrimLeft(body, " \t\r\n")
		if len(body) == 0 {
			break
		}

		end := bytes.IndexByte(body, ',')
		var token []byte
		if end < 0 {
			token, body = body, nil
		} else {
			token, body = body[:end], body[end+1:]
			if len(bytes.TrimSpace(body)) == 0 {
				return fmt.Errorf("image: trailing comma")
			}
		}

		v, err := strconv.ParseUint(string(bytes.TrimSpace(token)), 10, 8)
		if err != nil {
			return fmt.Errorf("image: invalid byte value %q", bytes.TrimSpace(token))
		}
		out = append(out, byte(v))
	}

	*b = out
	return nil
}
