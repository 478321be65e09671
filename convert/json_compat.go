package convert

import "bytes"

var nonFinite = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// replaceNonFinite rewrites the Infinity, -Infinity and NaN literals some
// config.json files contain as null, which encoding/json rejects otherwise.
// A key holding one of them is therefore treated as absent. Text inside
// strings and tokens that merely start with a literal are left alone.
func replaceNonFinite(in []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(in))

	var inString, escaped bool
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		case c == '"':
			inString = true
		default:
			if tok := nonFiniteAt(in, i); tok != nil {
				out.WriteString("null")
				i += len(tok) - 1
				continue
			}
		}

		out.WriteByte(c)
	}

	return out.Bytes()
}

func nonFiniteAt(in []byte, at int) []byte {
	if at > 0 && !bytes.ContainsRune([]byte(" \t\r\n:,["), rune(in[at-1])) {
		return nil
	}

	for _, tok := range nonFinite {
		end := at + len(tok)
		if !bytes.HasPrefix(in[at:], tok) {
			continue
		}

		if end < len(in) && !bytes.ContainsRune([]byte(" \t\r\n,]}"), rune(in[end])) {
			return nil
		}

		return tok
	}

	return nil
}
