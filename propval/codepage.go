package propval

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Codepages that PT_STRING8 values commonly arrive in, keyed by Windows
// codepage number (PidTagMessageCodepage, PidTagInternetCodepage).
var codepages = map[uint32]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28595: charmap.ISO8859_5,
	28597: charmap.ISO8859_7,
	28605: charmap.ISO8859_15,
	50220: japanese.ISO2022JP,
	51932: japanese.EUCJP,
	54936: simplifiedchinese.GB18030,
}

const (
	CodepageASCII = 20127
	CodepageUTF8  = 65001
)

// DecodeString8 converts a narrow string from the given codepage to UTF-8.
// Codepage 0 means "unknown": valid UTF-8 is kept, anything else is treated
// as Windows-1252.
func DecodeString8(s string, codepage uint32) (string, error) {
	switch codepage {
	case CodepageUTF8, CodepageASCII:
		return s, nil
	case 0:
		if utf8.ValidString(s) {
			return s, nil
		}
		codepage = 1252
	}
	enc, ok := codepages[codepage]
	if !ok {
		return "", fmt.Errorf("unsupported codepage %d", codepage)
	}
	return enc.NewDecoder().String(s)
}

// EncodeString8 converts a UTF-8 string to the given codepage.
func EncodeString8(s string, codepage uint32) (string, error) {
	switch codepage {
	case CodepageUTF8, 0:
		return s, nil
	}
	if codepage == CodepageASCII {
		codepage = 28591
	}
	enc, ok := codepages[codepage]
	if !ok {
		return "", fmt.Errorf("unsupported codepage %d", codepage)
	}
	return encoding.HTMLEscapeUnsupported(enc.NewEncoder()).String(s)
}
