package mapi

import (
	"encoding/binary"
	"fmt"

	"github.com/andreyvit/mapi/propval"
)

// Restriction is a filter predicate evaluated by the server (MS-OXCDATA
// 2.12). The concrete types are And, Or, Not, Content, Property,
// CompareProps, Bitmask, PropSize, Exist, SubObject and Count.
type Restriction interface {
	Kind() RestrictionKind
	appendTo(buf []byte, f propval.Format) ([]byte, error)
	size(f propval.Format) (int, error)
}

type RestrictionKind uint8

const (
	KindAnd          RestrictionKind = 0x00
	KindOr           RestrictionKind = 0x01
	KindNot          RestrictionKind = 0x02
	KindContent      RestrictionKind = 0x03
	KindProperty     RestrictionKind = 0x04
	KindCompareProps RestrictionKind = 0x05
	KindBitmask      RestrictionKind = 0x06
	KindSize         RestrictionKind = 0x07
	KindExist        RestrictionKind = 0x08
	KindSubObject    RestrictionKind = 0x09
	KindComment      RestrictionKind = 0x0A
	KindCount        RestrictionKind = 0x0B
)

func (k RestrictionKind) String() string {
	switch k {
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	case KindContent:
		return "CONTENT"
	case KindProperty:
		return "PROPERTY"
	case KindCompareProps:
		return "COMPAREPROPS"
	case KindBitmask:
		return "BITMASK"
	case KindSize:
		return "SIZE"
	case KindExist:
		return "EXIST"
	case KindSubObject:
		return "SUBRESTRICTION"
	case KindComment:
		return "COMMENT"
	case KindCount:
		return "COUNT"
	default:
		return fmt.Sprintf("RES(0x%02X)", uint8(k))
	}
}

// Relop is a relational operator.
type Relop uint8

const (
	RelopLT         Relop = 0x00
	RelopLE         Relop = 0x01
	RelopGT         Relop = 0x02
	RelopGE         Relop = 0x03
	RelopEQ         Relop = 0x04
	RelopNE         Relop = 0x05
	RelopRE         Relop = 0x06
	RelopMemberOfDL Relop = 0x64
)

func (op Relop) String() string {
	switch op {
	case RelopLT:
		return "<"
	case RelopLE:
		return "<="
	case RelopGT:
		return ">"
	case RelopGE:
		return ">="
	case RelopEQ:
		return "=="
	case RelopNE:
		return "!="
	case RelopRE:
		return "=~"
	case RelopMemberOfDL:
		return "memberOfDL"
	default:
		return fmt.Sprintf("Relop(0x%02X)", uint8(op))
	}
}

// FuzzyLevel controls how a Content restriction matches. The low word is
// one of FuzzyFullString, FuzzySubstring or FuzzyPrefix; the high word holds
// modifier flags.
type FuzzyLevel uint32

const (
	FuzzyFullString FuzzyLevel = 0x00000000
	FuzzySubstring  FuzzyLevel = 0x00000001
	FuzzyPrefix     FuzzyLevel = 0x00000002

	FuzzyIgnoreCase     FuzzyLevel = 0x00010000
	FuzzyIgnoreNonSpace FuzzyLevel = 0x00020000
	FuzzyLoose          FuzzyLevel = 0x00040000
)

func (l FuzzyLevel) match() FuzzyLevel {
	return l & 0xFFFF
}

type BitmaskOp uint8

const (
	BitmaskEqualZero    BitmaskOp = 0x00
	BitmaskNotEqualZero BitmaskOp = 0x01
)

type (
	And []Restriction
	Or  []Restriction

	Not struct {
		Restriction Restriction
	}

	// Content matches string or binary properties against a literal.
	Content struct {
		FuzzyLevel FuzzyLevel
		Tag        propval.Tag
		Value      propval.Value
	}

	// Property compares a property against a literal.
	Property struct {
		Op    Relop
		Tag   propval.Tag
		Value propval.Value
	}

	CompareProps struct {
		Op   Relop
		Tag1 propval.Tag
		Tag2 propval.Tag
	}

	Bitmask struct {
		Op   BitmaskOp
		Tag  propval.Tag
		Mask uint32
	}

	// PropSize compares the byte size of a property's value.
	PropSize struct {
		Op   Relop
		Tag  propval.Tag
		Size uint32
	}

	Exist struct {
		Tag propval.Tag
	}

	// SubObject applies a restriction to the recipients or attachments of a
	// message; Subobject is PidTagMessageRecipients or
	// PidTagMessageAttachments.
	SubObject struct {
		Subobject   propval.Tag
		Restriction Restriction
	}

	// Count limits the number of rows the inner restriction may match.
	Count struct {
		Count       uint32
		Restriction Restriction
	}
)

const (
	PidTagMessageRecipients  propval.Tag = 0x0E12000D
	PidTagMessageAttachments propval.Tag = 0x0E13000D
)

func (And) Kind() RestrictionKind          { return KindAnd }
func (Or) Kind() RestrictionKind           { return KindOr }
func (Not) Kind() RestrictionKind          { return KindNot }
func (Content) Kind() RestrictionKind      { return KindContent }
func (Property) Kind() RestrictionKind     { return KindProperty }
func (CompareProps) Kind() RestrictionKind { return KindCompareProps }
func (Bitmask) Kind() RestrictionKind      { return KindBitmask }
func (PropSize) Kind() RestrictionKind     { return KindSize }
func (Exist) Kind() RestrictionKind        { return KindExist }
func (SubObject) Kind() RestrictionKind    { return KindSubObject }
func (Count) Kind() RestrictionKind        { return KindCount }

// AppendRestriction encodes r. Literal operands are encoded in format f;
// ROP requests use propval.Row.
func AppendRestriction(buf []byte, r Restriction, f propval.Format) ([]byte, error) {
	if r == nil {
		return buf, fmt.Errorf("%w: nil restriction", ErrInvalidArgument)
	}
	start := len(buf)
	buf, err := r.appendTo(buf, f)
	if err != nil {
		return buf[:start], err
	}
	return buf, nil
}

// RestrictionSize returns the encoded length of r without encoding it.
func RestrictionSize(r Restriction, f propval.Format) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: nil restriction", ErrInvalidArgument)
	}
	return r.size(f)
}

func appendList(buf []byte, k RestrictionKind, subs []Restriction, f propval.Format) ([]byte, error) {
	if len(subs) > 0xFFFF {
		return buf, fmt.Errorf("%w: %v with %d operands", ErrInvalidArgument, k, len(subs))
	}
	buf = append(buf, byte(k))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(subs)))
	for _, sub := range subs {
		var err error
		buf, err = AppendRestriction(buf, sub, f)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func listSize(subs []Restriction, f propval.Format) (int, error) {
	n := 3
	for _, sub := range subs {
		sz, err := RestrictionSize(sub, f)
		if err != nil {
			return 0, err
		}
		n += sz
	}
	return n, nil
}

func (r And) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	return appendList(buf, KindAnd, r, f)
}

func (r And) size(f propval.Format) (int, error) {
	return listSize(r, f)
}

func (r Or) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	return appendList(buf, KindOr, r, f)
}

func (r Or) size(f propval.Format) (int, error) {
	return listSize(r, f)
}

func (r Not) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	return AppendRestriction(append(buf, byte(KindNot)), r.Restriction, f)
}

func (r Not) size(f propval.Format) (int, error) {
	n, err := RestrictionSize(r.Restriction, f)
	return 1 + n, err
}

func checkOperand(k RestrictionKind, tag propval.Tag, v propval.Value) error {
	if vt := v.Tag.Type(); vt != tag.Type() && vt != tag.Type().Scalar() {
		return fmt.Errorf("%w: %v on %v with %v operand", propval.ErrTypeMismatch, k, tag, v.Tag)
	}
	return nil
}

func (r Content) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	if err := checkOperand(KindContent, r.Tag, r.Value); err != nil {
		return buf, err
	}
	buf = append(buf, byte(KindContent))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.FuzzyLevel))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Tag))
	return propval.AppendTagged(buf, r.Value, f)
}

func (r Content) size(f propval.Format) (int, error) {
	n, err := propval.SizeTagged(r.Value, f)
	return 9 + n, err
}

func (r Property) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	if err := checkOperand(KindProperty, r.Tag, r.Value); err != nil {
		return buf, err
	}
	buf = append(buf, byte(KindProperty), byte(r.Op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Tag))
	return propval.AppendTagged(buf, r.Value, f)
}

func (r Property) size(f propval.Format) (int, error) {
	n, err := propval.SizeTagged(r.Value, f)
	return 6 + n, err
}

func (r CompareProps) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindCompareProps), byte(r.Op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Tag1))
	return binary.LittleEndian.AppendUint32(buf, uint32(r.Tag2)), nil
}

func (r CompareProps) size(f propval.Format) (int, error) {
	return 10, nil
}

func (r Bitmask) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindBitmask), byte(r.Op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Tag))
	return binary.LittleEndian.AppendUint32(buf, r.Mask), nil
}

func (r Bitmask) size(f propval.Format) (int, error) {
	return 10, nil
}

func (r PropSize) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindSize), byte(r.Op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Tag))
	return binary.LittleEndian.AppendUint32(buf, r.Size), nil
}

func (r PropSize) size(f propval.Format) (int, error) {
	return 10, nil
}

func (r Exist) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindExist))
	return binary.LittleEndian.AppendUint32(buf, uint32(r.Tag)), nil
}

func (r Exist) size(f propval.Format) (int, error) {
	return 5, nil
}

func (r SubObject) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindSubObject))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Subobject))
	return AppendRestriction(buf, r.Restriction, f)
}

func (r SubObject) size(f propval.Format) (int, error) {
	n, err := RestrictionSize(r.Restriction, f)
	return 5 + n, err
}

func (r Count) appendTo(buf []byte, f propval.Format) ([]byte, error) {
	buf = append(buf, byte(KindCount))
	buf = binary.LittleEndian.AppendUint32(buf, r.Count)
	return AppendRestriction(buf, r.Restriction, f)
}

func (r Count) size(f propval.Format) (int, error) {
	n, err := RestrictionSize(r.Restriction, f)
	return 5 + n, err
}

// maxRestrictionDepth bounds nesting when decoding.
const maxRestrictionDepth = 64

// DecodeRestriction reads one encoded restriction. Like propval.Decode, it
// either consumes the whole restriction or leaves r untouched.
func DecodeRestriction(r *propval.Reader, f propval.Format) (Restriction, error) {
	start := r.Off()
	res, err := decodeRestriction(r, f, 0)
	if err != nil {
		r.Seek(start)
		return nil, err
	}
	return res, nil
}

func decodeRestriction(r *propval.Reader, f propval.Format, depth int) (Restriction, error) {
	if depth > maxRestrictionDepth {
		return nil, fmt.Errorf("%w: restriction nested deeper than %d", propval.ErrCorrupt, maxRestrictionDepth)
	}
	k, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	switch kind := RestrictionKind(k); kind {
	case KindAnd, KindOr:
		n, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		subs := make([]Restriction, 0, min(int(n), r.Len()))
		for range n {
			sub, err := decodeRestriction(r, f, depth+1)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		if kind == KindAnd {
			return And(subs), nil
		}
		return Or(subs), nil

	case KindNot:
		sub, err := decodeRestriction(r, f, depth+1)
		if err != nil {
			return nil, err
		}
		return Not{sub}, nil

	case KindContent:
		level, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		tag, err := r.Tag()
		if err != nil {
			return nil, err
		}
		v, err := propval.DecodeTagged(r, f)
		if err != nil {
			return nil, err
		}
		return Content{FuzzyLevel(level), tag, v}, nil

	case KindProperty:
		op, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		tag, err := r.Tag()
		if err != nil {
			return nil, err
		}
		v, err := propval.DecodeTagged(r, f)
		if err != nil {
			return nil, err
		}
		return Property{Relop(op), tag, v}, nil

	case KindCompareProps, KindBitmask, KindSize:
		op, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		tag, err := r.Tag()
		if err != nil {
			return nil, err
		}
		arg, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindCompareProps:
			return CompareProps{Relop(op), tag, propval.Tag(arg)}, nil
		case KindBitmask:
			return Bitmask{BitmaskOp(op), tag, arg}, nil
		default:
			return PropSize{Relop(op), tag, arg}, nil
		}

	case KindExist:
		tag, err := r.Tag()
		if err != nil {
			return nil, err
		}
		return Exist{tag}, nil

	case KindSubObject, KindCount:
		arg, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		sub, err := decodeRestriction(r, f, depth+1)
		if err != nil {
			return nil, err
		}
		if kind == KindSubObject {
			return SubObject{propval.Tag(arg), sub}, nil
		}
		return Count{arg, sub}, nil

	default:
		return nil, fmt.Errorf("%w: restriction type %v", propval.ErrCorrupt, kind)
	}
}
