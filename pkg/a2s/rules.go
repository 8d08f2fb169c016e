package a2s

import "bytes"

const (
	rulesRequestHeader  byte = 0x56
	rulesResponseHeader byte = 0x45
)

// Rule is a server configuration variable. Names are not guaranteed to be unique.
type Rule struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DecodeRules decodes an A2S_RULES payload starting at the response type byte.
// Unlike DecodePlayers it does not tolerate truncation: a payload ending before
// the declared number of rules is an error.
func DecodeRules(payload []byte) ([]Rule, error) {
	r := newPacketReader(payload)

	header, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if header != rulesResponseHeader {
		return nil, &HeaderError{Expected: rulesResponseHeader, Found: header}
	}

	total, err := r.uint16()
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, total)
	for i := 0; i < int(total); i++ {
		name, err := requireString(r)
		if err != nil {
			return nil, err
		}

		value, err := requireString(r)
		if err != nil {
			return nil, err
		}

		rules = append(rules, Rule{Name: name, Value: value})
	}

	return rules, nil
}

// requireString reads a string that must end with its terminator. A payload
// cut inside a name or value is truncated, not a shorter rule.
func requireString(r *packetReader) (string, error) {
	if bytes.IndexByte(r.buf[r.pos:], 0) < 0 {
		return "", truncated(r.remaining()+1, r.remaining())
	}

	return r.string(), nil
}
