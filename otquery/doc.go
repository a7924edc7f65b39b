/*
Package otquery provides read-only convenience queries over a parsed
font (github.com/npillmayer/opentype/ot.Font): metrics, glyph lookup,
naming, and script/language support checks. It never mutates table
bytes. Some queries use what ot has already decoded; others (head, maxp,
name, fvar, STAT) read their fields directly from a table's raw bytes.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.
*/
package otquery

import "github.com/npillmayer/schuko/tracing"

// tracer writes to trace with key 'tyse.fonts'
func tracer() tracing.Trace {
	return tracing.Select("tyse.fonts")
}
