// Package netdiff renders a human-readable diff between two component
// or entity snapshots, for debug logging and test failure messages --
// "what actually changed" instead of two opaque struct dumps.
package netdiff

import (
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Snapshot is a JSON-shaped view of an entity or component, the same
// shape a debug/introspection endpoint would marshal for a human to
// read.
type Snapshot map[string]interface{}

// String renders the difference between before and after as an ASCII
// diff, or "" if the two snapshots are equal. Mirrors the reconciler's
// own before/after diff string used in its sync and diff commands,
// generalized from *state.Document pairs to arbitrary snapshots.
func String(before, after Snapshot) (string, error) {
	d := gojsondiff.New().CompareObjects(before, after)
	if !d.Modified() {
		return "", nil
	}
	f := formatter.NewAsciiFormatter(map[string]interface{}(before), formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	})
	out, err := f.Format(d)
	if err != nil {
		return "", fmt.Errorf("netdiff: formatting diff: %w", err)
	}
	return out, nil
}

// Modified reports whether after differs from before at all, without
// paying for formatting when the caller only needs a boolean.
func Modified(before, after Snapshot) bool {
	return gojsondiff.New().CompareObjects(before, after).Modified()
}
