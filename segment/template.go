package segment

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/segstore/model"
)

// Template describes the shape of a node: its primary type followed by the
// names of its properties.
type Template struct {
	PrimaryType string
	Properties  []string
}

func (t *Template) String() string {
	return fmt.Sprintf("{ %s: %s }", t.PrimaryType, strings.Join(t.Properties, ", "))
}

// weight approximates the memory held by the template.
func (t *Template) weight() int64 {
	w := int64(len(t.PrimaryType)) + 16
	for _, p := range t.Properties {
		w += int64(len(p)) + 16
	}
	return w
}

func (t *Template) encode() ([]byte, error) {
	names := append([]string{t.PrimaryType}, t.Properties...)
	if len(names) > math.MaxUint16 {
		return nil, errValueTooLarge
	}
	size := 2
	for _, n := range names {
		if len(n) > math.MaxUint16 {
			return nil, errValueTooLarge
		}
		size += 2 + len(n)
	}
	buf := make([]byte, 2, size)
	binary.LittleEndian.PutUint16(buf, uint16(len(names)))
	for _, n := range names {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(n)))
		buf = append(buf, n...)
	}
	return buf, nil
}

// ReadTemplate decodes the Template record with the given number.
func (s *Segment) ReadTemplate(number uint32) (*Template, error) {
	r, err := s.typedRecord(number, model.RecordTypeTemplate)
	if err != nil {
		return nil, err
	}

	count, err := s.uint16At(r.Offset)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, malformed(s.id, "template %d has no primary type", number)
	}

	pos := r.Offset + 2
	names := make([]string, count)
	for i := range names {
		n, err := s.uint16At(pos)
		if err != nil {
			return nil, err
		}
		pos += 2
		if pos+int(n) > len(s.data) {
			return nil, malformed(s.id, "template %d name overruns buffer", number)
		}
		names[i] = string(s.data[pos : pos+int(n)])
		pos += int(n)
	}
	return &Template{PrimaryType: names[0], Properties: names[1:]}, nil
}
