// Package lenientjson parses near-JSON metadata documents, repairing the
// malformations that show up in hand-edited files: byte-order marks,
// comments, trailing commas, smart quotes, leading-zero HUC codes, and bare
// NaN/Infinity literals.
package lenientjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`(?m)(^|[,{]\s*)//.*$`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	hucLeadingZero = regexp.MustCompile(`"(HUC\d{1,2})"\s*:\s*(0\d+)(\s*[,}\]])`)
	nonFiniteRe    = regexp.MustCompile(`(^|[\s,:\[{])-?(?:NaN|Infinity)([\s,\]}]|$)`)

	smartQuotes = strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)
)

// ParseError reports a document that remained unreadable after repair. It
// carries the position of the original strict-parse failure plus surrounding
// lines for diagnostics.
type ParseError struct {
	Where   string
	Line    int
	Col     int
	Message string
	Context string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lenientjson: bad JSON at %s: %s (line %d, col %d)\n%s",
		e.Where, e.Message, e.Line, e.Col, e.Context)
}

// Parse decodes raw as JSON, attempting the lenient repairs only when a
// strict parse fails. Numbers decode as json.Number so values like HUC codes
// survive untouched. The where label names the source in error messages.
func Parse(raw, where string) (any, error) {
	v, strictErr := strictParse(raw)
	if strictErr == nil {
		return v, nil
	}

	v, repairErr := strictParse(Repair(raw))
	if repairErr == nil {
		return v, nil
	}

	// Report the position of the original failure: the repaired text's
	// offsets no longer line up with what the operator is looking at.
	line, col := locate(raw, strictErr)
	return nil, &ParseError{
		Where:   where,
		Line:    line,
		Col:     col,
		Message: strictErr.Error(),
		Context: contextLines(raw, line),
	}
}

// Repair applies the repair steps in order. Each step is idempotent, and the
// order matters: comment removal must precede trailing-comma removal, and
// quote normalization must precede the HUC rewrite so the key is quoted with
// ASCII quotes by the time the HUC pattern runs.
func Repair(raw string) string {
	txt := strings.TrimPrefix(raw, "\uFEFF")
	txt = blockCommentRe.ReplaceAllString(txt, "")
	txt = lineCommentRe.ReplaceAllString(txt, "$1")
	txt = trailingComma.ReplaceAllString(txt, "$1")
	txt = smartQuotes.Replace(txt)
	txt = hucLeadingZero.ReplaceAllString(txt, `"$1": "$2"$3`)
	txt = replaceNonFinite(txt)
	return txt
}

// replaceNonFinite rewrites bare NaN and [-]Infinity tokens in value
// position to null. The boundary character is part of the match, so adjacent
// tokens ("[NaN,NaN]") need a second pass.
func replaceNonFinite(txt string) string {
	for {
		next := nonFiniteRe.ReplaceAllString(txt, "${1}null$2")
		if next == txt {
			return next
		}
		txt = next
	}
}

func strictParse(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Trailing garbage after the first value is still malformed input.
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

// locate converts a strict-parse error into a 1-based line/column pair.
func locate(raw string, err error) (line, col int) {
	var offset int64
	switch e := err.(type) {
	case *json.SyntaxError:
		offset = e.Offset
	case *json.UnmarshalTypeError:
		offset = e.Offset
	default:
		return 1, 1
	}
	if offset > int64(len(raw)) {
		offset = int64(len(raw))
	}
	prefix := raw[:offset]
	line = 1 + strings.Count(prefix, "\n")
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		col = int(offset) - i
	} else {
		col = int(offset) + 1
	}
	if col < 1 {
		col = 1
	}
	return line, col
}

// contextLines renders the failing line with two lines either side, numbered
// the way the original file reads.
func contextLines(raw string, line int) string {
	lines := strings.Split(raw, "\n")
	lo := line - 3
	if lo < 0 {
		lo = 0
	}
	hi := line + 2
	if hi > len(lines) {
		hi = len(lines)
	}
	var buf bytes.Buffer
	for i := lo; i < hi; i++ {
		fmt.Fprintf(&buf, "%5d: %s\n", i+1, lines[i])
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
