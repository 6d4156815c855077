package trace

import (
	"bytes"
	"encoding/json"
)

// Step is one observation at a statement boundary. Synthetic steps
// (padding, timeout, failure) share the same shape with an optional
// error field, so consumers never need a separate error schema.
type Step struct {
	Step   int      `json:"step"`
	Line   int      `json:"line"`
	Locals *Dict    `json:"locals"`
	Stack  []string `json:"stack"`
	Error  string   `json:"error,omitempty"`
}

// NewPaddingStep returns the synthetic step emitted when a run
// observes zero statements, so callers never see an empty sequence.
func NewPaddingStep() Step {
	return Step{Step: 1, Line: 0, Locals: NewDict(), Stack: []string{}}
}

// NewErrorStep returns a synthetic step carrying a failure message.
func NewErrorStep(msg string) Step {
	s := NewPaddingStep()
	s.Error = msg
	return s
}

// Dict is a string-keyed map that remembers insertion order, so local
// variable snapshots marshal in binding order rather than map order.
type Dict struct {
	keys []string
	vals map[string]any
}

func NewDict() *Dict {
	return &Dict{vals: make(map[string]any)}
}

func (d *Dict) Set(key string, val any) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = val
}

func (d *Dict) Get(key string) (any, bool) {
	v, ok := d.vals[key]
	return v, ok
}

func (d *Dict) Len() int {
	return len(d.keys)
}

func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Dict) MarshalJSON() ([]byte, error) {
	if d == nil || len(d.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Dict) UnmarshalJSON(data []byte) error {
	d.keys = nil
	d.vals = make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		d.Set(key, val)
	}
	_, err = dec.Token()
	return err
}
