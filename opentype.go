/*
Package opentype handles OpenType fonts.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package opentype

import (
	"github.com/npillmayer/opentype/ot"
	"github.com/npillmayer/opentype/otquery"
	"golang.org/x/image/font/sfnt"
)

// FromBinary parses raw OpenType bytes and returns a decoded font.
//
// The input is expected to contain a complete single-font SFNT stream.
// It must not change after parsing for the font to remain usable.
func FromBinary(data []byte) (*ot.Font, error) {
	return ot.Parse(data)
}

// FamilyName extracts family and subfamily names from a font's `name` table.
//
// Returned values are empty if no matching records exist or if records cannot be
// decoded by the current name-table reader.
func FamilyName(f *ot.Font) (family, subfamily string) {
	for nameId, stringValue := range otquery.NamesRange(f) {
		switch nameId {
		case sfnt.NameIDFamily:
			family = stringValue
		case sfnt.NameIDSubfamily:
			subfamily = stringValue
		}
	}
	return
}

// SupportsScript reports whether a font declares support for the given
// script and (optionally) language, consulting GSUB's ScriptList/LangSys
// structure. Substitution execution (shaping) is out of scope for this
// module; this only answers "does the font claim to cover this script".
func SupportsScript(f *ot.Font, script, language ot.Tag) (ot.Tag, ot.Tag) {
	return otquery.FontSupportsScript(f, script, language)
}
