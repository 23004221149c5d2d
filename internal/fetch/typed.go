package fetch

import "encoding/json"

// Typed decodes a provider object into T and keeps the original bytes, so the
// warehouse stores the full payload while transforms work on typed fields.
type Typed[T any] struct {
	Value T
	Raw   json.RawMessage
}

func (t *Typed[T]) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &t.Value); err != nil {
		return err
	}
	t.Raw = append(t.Raw[:0], b...)
	return nil
}

func (t Typed[T]) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	return json.Marshal(t.Value)
}
