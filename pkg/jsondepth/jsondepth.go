// Package jsondepth measures the container nesting depth of a JSON
// document without materializing it. Guards against recursive
// "billion laughs"-style structural bombs where a tiny body produces a
// deeply nested value.
//
// Depth counts container nesting: any non-container value has depth equal
// to its ancestor count, and an empty container at depth d contributes
// depth d.
package jsondepth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Max returns the maximum container nesting depth of the document. A bare
// scalar has depth 0, "{}" has depth 1, `{"a":[1]}` has depth 2.
func Max(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth, deepest := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return deepest, nil
		}
		if err != nil {
			return 0, err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > deepest {
					deepest = depth
				}
			case '}', ']':
				depth--
			}
		}
	}
}

// Exceeds reports whether the document nests deeper than limit, bailing
// out as soon as the limit is crossed rather than scanning to the end.
func Exceeds(data []byte, limit int) (bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > limit {
					return true, nil
				}
			case '}', ']':
				depth--
			}
		}
	}
}
