// metadata.go - Wire-Format der Parameter-Metadaten im Bundle
//
// Die Metadaten sind eine kleine Protobuf-Nachricht. Kodiert wird direkt
// im Wire-Format; Feldnummern sind der externe Kontrakt des Runtime-Loaders:
//   1 start_token (string)
//   2 stop_tokens (repeated string)
//   3 bytes_to_unicode (bool)
//   4 prompt_prefix (string)
//   5 prompt_suffix (string)
package bundle

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Metadata - Parameter-Metadaten des Bundles
type Metadata struct {
	StartToken     string
	StopTokens     []string
	BytesToUnicode bool
	PromptPrefix   string
	PromptSuffix   string
}

// encode serialisiert die Metadaten ins Wire-Format
func (m Metadata) encode() []byte {
	var b []byte

	if m.StartToken != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.StartToken)
	}
	for _, t := range m.StopTokens {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, t)
	}
	if m.BytesToUnicode {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if m.PromptPrefix != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, m.PromptPrefix)
	}
	if m.PromptSuffix != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, m.PromptSuffix)
	}

	return b
}

// decodeMetadata liest eine kodierte Metadaten-Nachricht zurueck;
// unbekannte Felder werden toleriert und uebersprungen
func decodeMetadata(raw []byte) (Metadata, error) {
	var m Metadata

	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return Metadata{}, fmt.Errorf("parse metadata: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch {
		case typ == protowire.BytesType && num >= 1 && num <= 5 && num != 3:
			s, n := protowire.ConsumeString(raw)
			if n < 0 {
				return Metadata{}, fmt.Errorf("parse metadata field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
			switch num {
			case 1:
				m.StartToken = s
			case 2:
				m.StopTokens = append(m.StopTokens, s)
			case 4:
				m.PromptPrefix = s
			case 5:
				m.PromptSuffix = s
			}

		case typ == protowire.VarintType && num == 3:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return Metadata{}, fmt.Errorf("parse metadata field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
			m.BytesToUnicode = v != 0

		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return Metadata{}, fmt.Errorf("parse metadata field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
		}
	}

	return m, nil
}
