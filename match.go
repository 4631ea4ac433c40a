package mapi

import (
	"bytes"
	"cmp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/andreyvit/mapi/propval"
)

// Match evaluates r against a property list, the way a server evaluates it
// against a table row. It is used to filter rows that were already fetched
// or stored locally.
//
// SubObject never matches a flat property list. Count is evaluated as its
// inner restriction; limiting the number of matches is up to the caller.
// RelopRE and RelopMemberOfDL never match.
func Match(r Restriction, props []propval.Value) bool {
	switch r := r.(type) {
	case And:
		for _, sub := range r {
			if !Match(sub, props) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range r {
			if Match(sub, props) {
				return true
			}
		}
		return false
	case Not:
		return !Match(r.Restriction, props)
	case Content:
		v, ok := lookup(props, r.Tag)
		return ok && matchContent(r.FuzzyLevel, v, r.Value)
	case Property:
		v, ok := lookup(props, r.Tag)
		if !ok {
			return false
		}
		if v.Tag.Type().IsMulti() && !r.Value.Tag.Type().IsMulti() {
			return anyElement(v, func(e propval.Value) bool {
				c, ok := compareValues(e, r.Value)
				return ok && applyRelop(r.Op, c)
			})
		}
		c, ok := compareValues(v, r.Value)
		return ok && applyRelop(r.Op, c)
	case CompareProps:
		a, ok1 := lookup(props, r.Tag1)
		b, ok2 := lookup(props, r.Tag2)
		if !ok1 || !ok2 {
			return false
		}
		c, ok := compareValues(a, b)
		return ok && applyRelop(r.Op, c)
	case Bitmask:
		v, ok := lookup(props, r.Tag)
		if !ok {
			return false
		}
		n, ok := v.AsInt64()
		if !ok {
			return false
		}
		zero := uint32(n)&r.Mask == 0
		return zero == (r.Op == BitmaskEqualZero)
	case PropSize:
		v, ok := lookup(props, r.Tag)
		return ok && applyRelop(r.Op, cmp.Compare(valueSize(v), int(r.Size)))
	case Exist:
		_, ok := lookup(props, r.Tag)
		return ok
	case SubObject:
		return false
	case Count:
		return Match(r.Restriction, props)
	default:
		return false
	}
}

// lookup finds a non-error property by identifier. String8 and Unicode
// properties are interchangeable.
func lookup(props []propval.Value, tag propval.Tag) (propval.Value, bool) {
	for _, v := range props {
		if v.Tag.ID() != tag.ID() || v.IsError() {
			continue
		}
		if v.Tag.Type() == tag.Type() || tag.Type() == propval.TypeUnspecified || stringTypes(v.Tag.Type(), tag.Type()) {
			return v, true
		}
	}
	return propval.Value{}, false
}

func stringTypes(a, b propval.Type) bool {
	isStr := func(t propval.Type) bool {
		t = t.Scalar()
		return t == propval.TypeString8 || t == propval.TypeUnicode
	}
	return isStr(a) && isStr(b) && a.IsMulti() == b.IsMulti()
}

func anyElement(v propval.Value, f func(e propval.Value) bool) bool {
	tag := v.Tag.WithType(v.Tag.Type().Scalar())
	switch d := v.Data.(type) {
	case []int16:
		return anyOf(tag, d, f)
	case []int32:
		return anyOf(tag, d, f)
	case []int64:
		return anyOf(tag, d, f)
	case []float32:
		return anyOf(tag, d, f)
	case []float64:
		return anyOf(tag, d, f)
	case []string:
		return anyOf(tag, d, f)
	case []propval.Filetime:
		return anyOf(tag, d, f)
	case []propval.GUID:
		return anyOf(tag, d, f)
	case [][]byte:
		return anyOf(tag, d, f)
	default:
		return false
	}
}

func anyOf[T any](tag propval.Tag, elems []T, f func(e propval.Value) bool) bool {
	for _, e := range elems {
		if f(propval.Value{Tag: tag, Data: e}) {
			return true
		}
	}
	return false
}

func matchContent(level FuzzyLevel, v, lit propval.Value) bool {
	fold := level&(FuzzyIgnoreCase|FuzzyLoose) != 0
	if v.Tag.Type().IsMulti() {
		return anyElement(v, func(e propval.Value) bool {
			return matchContent(level, e, lit)
		})
	}
	switch d := v.Data.(type) {
	case string:
		s, ok := lit.AsString()
		if !ok {
			return false
		}
		if fold {
			caser := cases.Fold()
			d, s = caser.String(d), caser.String(s)
		}
		return matchFuzzy(level, d, s)
	case []byte:
		b, ok := lit.AsBytes()
		if !ok {
			return false
		}
		return matchFuzzy(level, string(d), string(b))
	default:
		return false
	}
}

func matchFuzzy(level FuzzyLevel, s, lit string) bool {
	switch level.match() {
	case FuzzySubstring:
		return strings.Contains(s, lit)
	case FuzzyPrefix:
		return strings.HasPrefix(s, lit)
	default:
		return s == lit
	}
}

func compareValues(a, b propval.Value) (int, bool) {
	if x, ok := a.AsInt64(); ok {
		if y, ok := b.AsInt64(); ok {
			return cmp.Compare(x, y), true
		}
	}
	switch x := a.Data.(type) {
	case float32:
		if y, ok := b.Data.(float32); ok {
			return cmp.Compare(x, y), true
		}
	case float64:
		if y, ok := b.Data.(float64); ok {
			return cmp.Compare(x, y), true
		}
	case string:
		if y, ok := b.Data.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.Data.(bool); ok {
			return cmp.Compare(boolInt(x), boolInt(y)), true
		}
	case propval.Filetime:
		if y, ok := b.Data.(propval.Filetime); ok {
			return cmp.Compare(x.Ticks(), y.Ticks()), true
		}
	case propval.GUID:
		if y, ok := b.Data.(propval.GUID); ok {
			return bytes.Compare(propval.AppendGUID(nil, x), propval.AppendGUID(nil, y)), true
		}
	case []byte:
		if y, ok := b.Data.([]byte); ok {
			return bytes.Compare(x, y), true
		}
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func applyRelop(op Relop, c int) bool {
	switch op {
	case RelopLT:
		return c < 0
	case RelopLE:
		return c <= 0
	case RelopGT:
		return c > 0
	case RelopGE:
		return c >= 0
	case RelopEQ:
		return c == 0
	case RelopNE:
		return c != 0
	default:
		return false
	}
}

// valueSize is the payload size of a value, excluding length prefixes.
func valueSize(v propval.Value) int {
	switch d := v.Data.(type) {
	case []byte:
		return len(d)
	case string:
		if v.Tag.Type() == propval.TypeUnicode {
			return len(propval.EncodeUTF16(d))
		}
		return len(d)
	default:
		n, _ := propval.Size(v, propval.Stream)
		return n
	}
}
