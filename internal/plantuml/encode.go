// Package plantuml implements the text encoding understood by PlantUML
// servers: raw DEFLATE followed by a base64 variant with a custom alphabet.
package plantuml

import (
	"bytes"
	"compress/flate"
	"fmt"
)

// Encode compresses code with headerless DEFLATE at the best compression
// level and encodes the result with the PlantUML 6-bit alphabet. The output
// contains only [0-9A-Za-z_-] and is stable for a given input.
func Encode(code string) (string, error) {
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create deflate writer: %w", err)
	}
	if _, err := writer.Write([]byte(code)); err != nil {
		return "", fmt.Errorf("deflate: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("flush deflate: %w", err)
	}
	return encode64(buf.Bytes()), nil
}

// encode64 packs 3 input bytes into 4 output symbols. A single leftover
// byte yields 2 symbols, two leftover bytes yield 3.
func encode64(data []byte) string {
	var out bytes.Buffer
	for i := 0; i < len(data); i += 3 {
		switch {
		case i+2 == len(data):
			out.WriteByte(encode6bit((data[i] >> 2) & 0x3f))
			out.WriteByte(encode6bit(((data[i] & 0x3) << 4) | ((data[i+1] >> 4) & 0xf)))
			out.WriteByte(encode6bit((data[i+1] & 0xf) << 2))
		case i+1 == len(data):
			out.WriteByte(encode6bit((data[i] >> 2) & 0x3f))
			out.WriteByte(encode6bit((data[i] & 0x3) << 4))
		default:
			out.WriteByte(encode6bit((data[i] >> 2) & 0x3f))
			out.WriteByte(encode6bit(((data[i] & 0x3) << 4) | ((data[i+1] >> 4) & 0xf)))
			out.WriteByte(encode6bit(((data[i+1] & 0xf) << 2) | ((data[i+2] >> 6) & 0x3)))
			out.WriteByte(encode6bit(data[i+2] & 0x3f))
		}
	}
	return out.String()
}

func encode6bit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	b -= 10
	if b < 26 {
		return 'A' + b
	}
	b -= 26
	if b < 26 {
		return 'a' + b
	}
	b -= 26
	if b == 0 {
		return '-'
	}
	if b == 1 {
		return '_'
	}
	return '?'
}
