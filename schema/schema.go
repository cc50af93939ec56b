package schema

import "encoding/json"

// Schema is message schema interface
type Schema interface {
	// String returns a display representation of the schema value
	String() string
}

// Stringify renders a schema value for inclusion in a chat message.
// Plain strings pass through, structured values are marshaled to JSON.
func Stringify(s Schema) string {
	if v, ok := s.(String); ok {
		return string(v)
	}
	bs, _ := json.Marshal(s)
	return string(bs)
}

// ToBytes renders a schema value as bytes.
func ToBytes(s Schema) []byte {
	if v, ok := s.(String); ok {
		return []byte(v)
	}
	bs, _ := json.Marshal(s)
	return bs
}
