package model

import (
	"fmt"
	"strconv"
	"strings"
)

// GCGeneration describes the garbage collection epoch that produced a segment.
type GCGeneration struct {
	Generation     uint32
	FullGeneration uint32
	Compacted      bool
}

// NullGeneration tags segments that are not generation tracked (bulk segments).
var NullGeneration = GCGeneration{}

// IsNull reports whether g is the NullGeneration.
func (g GCGeneration) IsNull() bool {
	return g == NullGeneration
}

// String returns a string representation of the generation.
func (g GCGeneration) String() string {
	return fmt.Sprintf("GCGeneration{generation=%d,fullGeneration=%d,isCompacted=%t}",
		g.Generation, g.FullGeneration, g.Compacted)
}

// RecordType tags a record inside a data segment.
//
// The set below is closed, but decoders must accept values outside of it:
// records of unknown type are passed through unchanged.
type RecordType uint8

const (
	RecordTypeLeaf RecordType = iota
	RecordTypeBranch
	RecordTypeBucket
	RecordTypeList
	RecordTypeValue
	RecordTypeBlock
	RecordTypeTemplate
	RecordTypeNode
	RecordTypeBlobID
)

var recordTypeNames = [...]string{
	RecordTypeLeaf:     "LEAF",
	RecordTypeBranch:   "BRANCH",
	RecordTypeBucket:   "BUCKET",
	RecordTypeList:     "LIST",
	RecordTypeValue:    "VALUE",
	RecordTypeBlock:    "BLOCK",
	RecordTypeTemplate: "TEMPLATE",
	RecordTypeNode:     "NODE",
	RecordTypeBlobID:   "BLOB_ID",
}

// Known reports whether t is part of the closed enumeration.
func (t RecordType) Known() bool {
	return int(t) < len(recordTypeNames)
}

func (t RecordType) String() string {
	if t.Known() {
		return recordTypeNames[t]
	}
	return fmt.Sprintf("RecordType(%d)", uint8(t))
}

// RecordID addresses a record: the owning segment and the record number.
type RecordID struct {
	Segment SegmentID
	Number  uint32
}

// String returns a string representation of the RecordID.
func (r RecordID) String() string {
	return fmt.Sprintf("%s:%d", r.Segment, r.Number)
}

// ParseRecordID parses the "segment:number" form produced by RecordID.String.
func ParseRecordID(s string) (RecordID, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return RecordID{}, fmt.Errorf("invalid record id %q", s)
	}
	seg, err := ParseSegmentID(s[:i])
	if err != nil {
		return RecordID{}, err
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return RecordID{}, fmt.Errorf("invalid record number in %q: %w", s, err)
	}
	return RecordID{Segment: seg, Number: uint32(n)}, nil
}
