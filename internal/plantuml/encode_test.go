package plantuml

import (
	"bytes"
	"compress/flate"
	"io"
	"regexp"
	"strings"
	"testing"
)

func TestEncodeIsDeterministic(t *testing.T) {
	code := "@startuml\ntitle Commandes\nClient -> Serveur : requête\n@enduml"
	first, err := Encode(code)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Encode(code)
		if err != nil {
			t.Fatalf("encode attempt %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("encode not deterministic: %q vs %q", again, first)
		}
	}
}

func TestEncodeOutputAlphabet(t *testing.T) {
	allowed := regexp.MustCompile(`^[0-9A-Za-z_-]*$`)
	inputs := []string{
		"",
		"@startuml\nA->B\n@enduml",
		"accents éàü and symbols ©∆ and emoji 🌱",
		strings.Repeat("Bob -> Alice : hello\n", 200),
	}
	for _, input := range inputs {
		encoded, err := Encode(input)
		if err != nil {
			t.Fatalf("encode %q: %v", input, err)
		}
		if !allowed.MatchString(encoded) {
			t.Fatalf("encoded output contains characters outside the alphabet: %q", encoded)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	inputs := []string{
		"@startuml\ntitle Foo\nA->B\n@enduml",
		"un café, s'il vous plaît",
		strings.Repeat("participant \"Stéphane\"\n", 50),
		"\x00\x01\x02 binary-ish",
	}
	for _, input := range inputs {
		encoded, err := Encode(input)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		deflated, err := decode64(encoded)
		if err != nil {
			t.Fatalf("decode64: %v", err)
		}
		reader := flate.NewReader(bytes.NewReader(deflated))
		inflated, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("inflate: %v", err)
		}
		if string(inflated) != input {
			t.Fatalf("round trip mismatch: got %q want %q", inflated, input)
		}
	}
}

func TestEncode64PartialGroups(t *testing.T) {
	cases := []struct {
		name  string
		input []byte
		want  string
	}{
		{"one byte", []byte{0x00}, "00"},
		{"two bytes", []byte{0x00, 0x00}, "000"},
		{"three bytes", []byte{0x00, 0x00, 0x00}, "0000"},
		// 0xFF splits into 111111|11 followed by four padding zero bits.
		{"all ones single", []byte{0xff}, "_m"},
		{"four bytes", []byte{0x00, 0x00, 0x00, 0x00}, "000000"},
	}
	for _, tc := range cases {
		if got := encode64(tc.input); got != tc.want {
			t.Fatalf("%s: encode64(%v) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestEncode6bitAlphabet(t *testing.T) {
	want := "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"
	var got []byte
	for b := byte(0); b < 64; b++ {
		got = append(got, encode6bit(b))
	}
	if string(got) != want {
		t.Fatalf("alphabet mismatch:\ngot  %q\nwant %q", got, want)
	}
}

// decode64 reverses encode64 for round-trip testing.
func decode64(s string) ([]byte, error) {
	values := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		v, err := decode6bit(s[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	var out bytes.Buffer
	for i := 0; i+1 < len(values); i += 4 {
		out.WriteByte((values[i] << 2) | (values[i+1] >> 4))
		if i+2 < len(values) {
			out.WriteByte((values[i+1] << 4) | (values[i+2] >> 2))
		}
		if i+3 < len(values) {
			out.WriteByte((values[i+2] << 6) | values[i+3])
		}
	}
	return out.Bytes(), nil
}

func decode6bit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'Z':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'z':
		return c - 'a' + 36, nil
	case c == '-':
		return 62, nil
	case c == '_':
		return 63, nil
	}
	return 0, errInvalidSymbol(c)
}

type errInvalidSymbol byte

func (e errInvalidSymbol) Error() string {
	return "invalid encoded symbol: " + string(byte(e))
}
