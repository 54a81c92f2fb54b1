package segment

import (
	"fmt"

	"github.com/hupe1980/segstore/model"
)

const (
	blobIDInline      = 0
	blobIDByReference = 1
)

// Resolver returns the decoded segment for id. It is used to follow BlobID
// records that point into other segments.
type Resolver func(id model.SegmentID) (*Segment, error)

// ReadBlobID returns the external blob id of the BlobID record with the given
// number. resolve may be nil if the record is known to be inline or to point
// into s itself.
func (s *Segment) ReadBlobID(number uint32, resolve Resolver) (string, error) {
	r, err := s.typedRecord(number, model.RecordTypeBlobID)
	if err != nil {
		return "", err
	}
	return s.BlobIDAt(r.Offset, resolve)
}

// BlobIDAt decodes a BlobID record payload at offset.
func (s *Segment) BlobIDAt(offset int, resolve Resolver) (string, error) {
	if offset < 0 || offset >= len(s.data) {
		return "", malformed(s.id, "blob id at offset %d outside buffer", offset)
	}

	switch form := s.data[offset]; form {
	case blobIDInline:
		n, err := s.uint16At(offset + 1)
		if err != nil {
			return "", err
		}
		start := offset + 3
		if start+int(n) > len(s.data) {
			return "", malformed(s.id, "inline blob id at offset %d overruns buffer", offset)
		}
		return string(s.data[start : start+int(n)]), nil

	case blobIDByReference:
		ref, err := s.uint32At(offset + 1)
		if err != nil {
			return "", err
		}
		number, err := s.uint32At(offset + 5)
		if err != nil {
			return "", err
		}

		target := s
		if ref != 0 {
			if int(ref) > len(s.references) {
				return "", malformed(s.id, "blob id reference index %d exceeds table of %d", ref, len(s.references))
			}
			if resolve == nil {
				return "", fmt.Errorf("blob id in %s points to %s: no resolver", s.id, s.references[ref-1])
			}
			target, err = resolve(s.references[ref-1])
			if err != nil {
				return "", err
			}
		}
		return target.ReadString(number)

	default:
		return "", malformed(s.id, "unknown blob id form %d at offset %d", form, offset)
	}
}

// BlobIDs returns the blob id of every BlobID record in ascending record
// number order. Duplicates are reported once per occurrence.
func (s *Segment) BlobIDs(resolve Resolver) ([]string, error) {
	var ids []string
	for _, r := range s.records {
		if r.Type != model.RecordTypeBlobID {
			continue
		}
		id, err := s.BlobIDAt(r.Offset, resolve)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
