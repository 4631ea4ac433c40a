package mapi

import (
	"fmt"
	"strings"

	"github.com/andreyvit/mapi/propval"
)

type SortDirection uint8

const (
	Ascending   SortDirection = 0x00
	Descending  SortDirection = 0x01
	MaxCategory SortDirection = 0x04
)

type SortOrder struct {
	Tag       propval.Tag
	Direction SortDirection
}

// SortOrderSet is the sort applied by RopSortTable. The first Categorized
// orders define categories, of which the first Expanded start expanded.
type SortOrderSet struct {
	Orders      []SortOrder
	Categorized uint16
	Expanded    uint16
}

func SortBy(orders ...SortOrder) SortOrderSet {
	return SortOrderSet{Orders: orders}
}

func (s SortOrderSet) validate() error {
	if len(s.Orders) > 0xFFFF {
		return fmt.Errorf("%w: %d sort orders", ErrInvalidArgument, len(s.Orders))
	}
	if int(s.Categorized) > len(s.Orders) || s.Expanded > s.Categorized {
		return fmt.Errorf("%w: %d categorized and %d expanded of %d sort orders", ErrInvalidArgument, s.Categorized, s.Expanded, len(s.Orders))
	}
	for _, o := range s.Orders {
		if o.Tag.Type().IsMulti() && o.Direction == MaxCategory {
			return fmt.Errorf("%w: MaxCategory on multi-valued %v", ErrInvalidArgument, o.Tag)
		}
	}
	return nil
}

func (s SortOrderSet) appendTo(b ropRequest) ropRequest {
	b = b.u16(uint16(len(s.Orders))).u16(s.Categorized).u16(s.Expanded)
	for _, o := range s.Orders {
		b = b.u32(uint32(o.Tag)).u8(uint8(o.Direction))
	}
	return b
}

func (s SortOrderSet) String() string {
	var buf strings.Builder
	for i, o := range s.Orders {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(o.Tag.String())
		switch o.Direction {
		case Descending:
			buf.WriteString(" desc")
		case MaxCategory:
			buf.WriteString(" maxcat")
		}
	}
	return buf.String()
}
