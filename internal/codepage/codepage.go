// Package codepage resolves the character set of the local environment
// to the Windows console code page identifier expected by chcp.
//
// The session launcher runs "chcp <id>" before starting the shell on
// Windows so that the subprocess and this library agree on the text
// encoding of the pipes.
package codepage

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// DefaultIdentifier is the UTF-8 console code page, used whenever the
// local character set cannot be resolved to something more specific.
const DefaultIdentifier = "65001"

// pages maps canonical encodings to their Windows code page identifiers.
var pages = map[encoding.Encoding]string{
	charmap.CodePage437:        "437",
	charmap.CodePage850:        "850",
	charmap.CodePage852:        "852",
	charmap.CodePage866:        "866",
	charmap.ISO8859_1:          "28591",
	charmap.ISO8859_2:          "28592",
	charmap.ISO8859_5:          "28595",
	charmap.ISO8859_7:          "28597",
	charmap.ISO8859_9:          "28599",
	charmap.ISO8859_15:         "28605",
	charmap.KOI8R:              "20866",
	charmap.KOI8U:              "21866",
	charmap.Windows874:         "874",
	charmap.Windows1250:        "1250",
	charmap.Windows1251:        "1251",
	charmap.Windows1252:        "1252",
	charmap.Windows1253:        "1253",
	charmap.Windows1254:        "1254",
	charmap.Windows1255:        "1255",
	charmap.Windows1256:        "1256",
	charmap.Windows1257:        "1257",
	charmap.Windows1258:        "1258",
	japanese.ShiftJIS:          "932",
	japanese.EUCJP:             "20932",
	korean.EUCKR:               "949",
	simplifiedchinese.GBK:      "936",
	simplifiedchinese.GB18030:  "54936",
	traditionalchinese.Big5:    "950",
}

// Identifier maps a character set name (IANA or common alias) to the
// matching Windows code page identifier. Unknown names resolve to
// DefaultIdentifier.
func Identifier(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultIdentifier
	}
	switch strings.ToUpper(trimmed) {
	case "UTF-8", "UTF8":
		return DefaultIdentifier
	case "UTF-16", "UTF-16LE":
		return "1200"
	case "UTF-16BE":
		return "1201"
	}

	enc, err := ianaindex.IANA.Encoding(trimmed)
	if err != nil || enc == nil {
		return DefaultIdentifier
	}
	if id, ok := pages[enc]; ok {
		return id
	}
	return DefaultIdentifier
}

// FromLocale extracts the character set from a POSIX locale string such
// as "en_US.UTF-8" and resolves it with Identifier.
func FromLocale(locale string) string {
	charset := locale
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		charset = locale[i+1:]
	}
	if i := strings.IndexByte(charset, '@'); i >= 0 {
		charset = charset[:i]
	}
	return Identifier(charset)
}
