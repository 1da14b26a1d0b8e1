package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gradewatch/internal/grades"
)

var ErrUnknownShape = errors.New("cache: unknown document shape")

// member is one key/value pair of a JSON object, kept in document order since
// the order of subjects is the order changes are reported in.
type member struct {
	key   string
	value json.RawMessage
}

func decodeObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		err = dec.Decode(&value)
		if err != nil {
			return nil, err
		}
		members = append(members, member{key: key, value: value})
	}

	tok, err = dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '}' {
		return nil, fmt.Errorf("expected end of object, got %v", tok)
	}
	_, err = dec.Token()
	if err != io.EOF {
		return nil, fmt.Errorf("trailing data after object")
	}
	return members, nil
}

type flatValue struct {
	Note  *string `json:"note"`
	Coef  string  `json:"coef"`
	Label *string `json:"label"`
}

type unitSubjectValue struct {
	Note string  `json:"note"`
	Coef string  `json:"coef"`
	Name *string `json:"name"`
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

func isUnit(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var probe map[string]json.RawMessage
	if json.Unmarshal(raw, &probe) != nil {
		return false
	}
	_, ok := probe["matieres"]
	return ok
}

// Decode reads any of the supported cache shapes: flat `{name: {note, coef}}`,
// legacy flat `{label: "grade"}` and unit-structured `{code: {matieres, moyenne}}`.
func Decode(data []byte) (grades.Snapshot, error) {
	members, err := decodeObject(data)
	if err != nil {
		return grades.Snapshot{}, err
	}
	if len(members) == 0 {
		return grades.Snapshot{Kind: grades.KindFlat}, nil
	}
	if isUnit(members[0].value) {
		return decodeUnits(members)
	}
	return decodeFlat(members)
}

func decodeFlat(members []member) (grades.Snapshot, error) {
	b := grades.NewBuilder()
	for _, m := range members {
		if isString(m.value) {
			var grade string
			err := json.Unmarshal(m.value, &grade)
			if err != nil {
				return grades.Snapshot{}, err
			}
			b.Put(grades.NewRecord(m.key, grade, ""))
			continue
		}

		var v flatValue
		err := json.Unmarshal(m.value, &v)
		if err != nil || v.Note == nil {
			return grades.Snapshot{}, fmt.Errorf("%w: subject %q", ErrUnknownShape, m.key)
		}
		r := grades.Record{
			Label:       m.key,
			Name:        m.key,
			Grade:       *v.Note,
			Coefficient: v.Coef,
		}
		if v.Label != nil {
			r.Label = *v.Label
		}
		if r.Coefficient == "" {
			r.Coefficient = grades.DefaultCoefficient
		}
		b.Put(r)
	}
	return b.Snapshot(), nil
}

func decodeUnits(members []member) (grades.Snapshot, error) {
	b := grades.NewBuilder()
	for _, m := range members {
		if !isUnit(m.value) {
			return grades.Snapshot{}, fmt.Errorf("%w: unit %q", ErrUnknownShape, m.key)
		}
		var v struct {
			Matieres json.RawMessage `json:"matieres"`
			Moyenne  *string         `json:"moyenne"`
		}
		err := json.Unmarshal(m.value, &v)
		if err != nil {
			return grades.Snapshot{}, err
		}

		b.OpenUnit(m.key)
		if v.Moyenne != nil {
			b.SetAverage(*v.Moyenne)
		}

		subjects, err := decodeObject(v.Matieres)
		if err != nil {
			return grades.Snapshot{}, fmt.Errorf("unit %q: %w", m.key, err)
		}
		for _, s := range subjects {
			r, err := decodeUnitSubject(s)
			if err != nil {
				return grades.Snapshot{}, fmt.Errorf("unit %q: %w", m.key, err)
			}
			b.Put(r)
		}
	}
	return b.Snapshot(), nil
}

func decodeUnitSubject(m member) (grades.Record, error) {
	if isString(m.value) {
		var grade string
		err := json.Unmarshal(m.value, &grade)
		if err != nil {
			return grades.Record{}, err
		}
		return grades.NewRecord(m.key, grade, ""), nil
	}

	var v unitSubjectValue
	err := json.Unmarshal(m.value, &v)
	if err != nil {
		return grades.Record{}, fmt.Errorf("%w: subject %q", ErrUnknownShape, m.key)
	}
	r := grades.NewRecord(m.key, v.Note, v.Coef)
	r.Label = m.key
	if v.Coef != "" {
		r.Coefficient = v.Coef
	}
	if v.Name != nil {
		r.Name = *v.Name
	}
	return r, nil
}

// Encode writes the canonical shape of s: unit-structured when s has units,
// flat `{name: {note, coef}}` otherwise.
func Encode(s grades.Snapshot) []byte {
	w := &writer{}
	if s.Kind == grades.KindUnits {
		w.open()
		for i, u := range s.Units {
			w.key(i, 1, u.Code)
			w.open()
			w.key(0, 2, "matieres")
			w.open()
			for j, r := range u.Subjects {
				w.key(j, 3, r.Label)
				writeUnitSubject(w, r)
			}
			w.close(3, len(u.Subjects))
			w.key(1, 2, "moyenne")
			w.str(u.Average)
			w.close(2, 2)
		}
		w.close(1, len(s.Units))
		return w.bytes()
	}

	w.open()
	for i, r := range s.Records {
		w.key(i, 1, r.Name)
		w.open()
		w.key(0, 2, "note")
		w.str(r.Grade)
		w.key(1, 2, "coef")
		w.str(r.Coefficient)
		if r.Label != r.Name {
			w.key(2, 2, "label")
			w.str(r.Label)
		}
		w.close(2, 1)
	}
	w.close(1, len(s.Records))
	return w.bytes()
}

// unit subjects are stored as "label": "grade" unless the name or coefficient
// cannot be derived back from the label.
func writeUnitSubject(w *writer, r grades.Record) {
	derived := grades.NewRecord(r.Label, r.Grade, "")
	if derived == r {
		w.str(r.Grade)
		return
	}
	w.open()
	w.key(0, 4, "note")
	w.str(r.Grade)
	w.key(1, 4, "coef")
	w.str(r.Coefficient)
	if derived.Name != r.Name {
		w.key(2, 4, "name")
		w.str(r.Name)
	}
	w.close(4, 1)
}

// writer emits indented JSON objects in insertion order.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) open() {
	w.buf.WriteByte('{')
}

func (w *writer) indent(depth int) {
	w.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		w.buf.WriteString("  ")
	}
}

// key writes the i-th key of an object at the given depth.
func (w *writer) key(i, depth int, k string) {
	if i > 0 {
		w.buf.WriteByte(',')
	}
	w.indent(depth)
	w.str(k)
	w.buf.WriteString(": ")
}

// close ends an object at depth-1, n is the number of members written.
func (w *writer) close(depth, n int) {
	if n > 0 {
		w.indent(depth - 1)
	}
	w.buf.WriteByte('}')
}

func (w *writer) str(s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// strings always encode
	_ = enc.Encode(s)
	w.buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}

func (w *writer) bytes() []byte {
	w.buf.WriteByte('\n')
	return w.buf.Bytes()
}
