package service

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

// Lookup reply fields
const (
	fieldLeafOffset    = "leaf_offset"
	fieldLeafSize      = "leaf_size"
	fieldDepth         = "depth"
	fieldPages         = "pages"
	fieldPath          = "path"
	fieldExhausted     = "exhausted"
	fieldPendingOffset = "pending_offset"
	fieldPendingSize   = "pending_size"
)

// LookupReply is the outcome of a remote lookup. Struct numbers are
// doubles, so offsets are exact up to 2^53.
type LookupReply struct {
	LeafOffset uint64
	LeafSize   uint64
	Depth      uint32
	Pages      uint32
	Path       []uint32
	Exhausted  bool
	Pending    cell.Address
}

// ReplyFromResult builds a reply from a walker result
func ReplyFromResult(res *walker.Result) LookupReply {
	return LookupReply{
		LeafOffset: res.LeafOffset,
		LeafSize:   res.LeafSize,
		Depth:      res.Depth,
		Pages:      res.Pages,
		Path:       append([]uint32(nil), res.Path...),
		Exhausted:  res.Exhausted,
		Pending:    res.Pending,
	}
}

// EncodeLookupReply converts r to a protobuf Struct
func EncodeLookupReply(r LookupReply) *structpb.Struct {
	path := make([]*structpb.Value, len(r.Path))
	for i, idx := range r.Path {
		path[i] = structpb.NewNumberValue(float64(idx))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldLeafOffset:    structpb.NewNumberValue(float64(r.LeafOffset)),
		fieldLeafSize:      structpb.NewNumberValue(float64(r.LeafSize)),
		fieldDepth:         structpb.NewNumberValue(float64(r.Depth)),
		fieldPages:         structpb.NewNumberValue(float64(r.Pages)),
		fieldPath:          structpb.NewListValue(&structpb.ListValue{Values: path}),
		fieldExhausted:     structpb.NewBoolValue(r.Exhausted),
		fieldPendingOffset: structpb.NewNumberValue(float64(r.Pending.Offset)),
		fieldPendingSize:   structpb.NewNumberValue(float64(r.Pending.Size)),
	}}
}

// DecodeLookupReply converts a protobuf Struct back into a reply
func DecodeLookupReply(s *structpb.Struct) (LookupReply, error) {
	var r LookupReply
	if s == nil {
		return r, fmt.Errorf("empty lookup reply")
	}

	number := func(name string) (float64, error) {
		v, ok := s.Fields[name]
		if !ok {
			return 0, fmt.Errorf("lookup reply missing %s", name)
		}
		n, ok := v.Kind.(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("lookup reply field %s is not a number", name)
		}
		return n.NumberValue, nil
	}

	fields := []struct {
		name string
		set  func(float64)
	}{
		{fieldLeafOffset, func(f float64) { r.LeafOffset = uint64(f) }},
		{fieldLeafSize, func(f float64) { r.LeafSize = uint64(f) }},
		{fieldDepth, func(f float64) { r.Depth = uint32(f) }},
		{fieldPages, func(f float64) { r.Pages = uint32(f) }},
		{fieldPendingOffset, func(f float64) { r.Pending.Offset = uint64(f) }},
		{fieldPendingSize, func(f float64) { r.Pending.Size = uint64(f) }},
	}
	for _, f := range fields {
		n, err := number(f.name)
		if err != nil {
			return r, err
		}
		f.set(n)
	}

	r.Exhausted = s.Fields[fieldExhausted].GetBoolValue()
	for _, v := range s.Fields[fieldPath].GetListValue().GetValues() {
		r.Path = append(r.Path, uint32(v.GetNumberValue()))
	}
	return r, nil
}
