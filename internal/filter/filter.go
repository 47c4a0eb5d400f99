// Package filter describes store-independent predicates over documents.
//
// A field is a path of one or two dot-separated segments. Resolving a path yields
// every scalar reachable from it: a segment holding an array contributes each of its
// elements, so "tags" covers a bare string array and "tags.name" covers an array of
// {name} sub-documents, while "category.name" covers a {name} object. A clause
// matches a document when any resolved scalar satisfies it. Stores translating
// expressions into their own query language must keep exactly these semantics.
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a predicate over a document.
type Expr interface {
	Match(doc map[string]any) bool
}

// And matches when every branch matches. An empty And matches everything.
type And []Expr

// Match implements Expr.
func (a And) Match(doc map[string]any) bool {
	for _, e := range a {
		if e != nil && !e.Match(doc) {
			return false
		}
	}
	return true
}

// Or matches when at least one branch matches. An empty Or matches nothing.
type Or []Expr

// Match implements Expr.
func (o Or) Match(doc map[string]any) bool {
	for _, e := range o {
		if e == nil || e.Match(doc) {
			return true
		}
	}
	return false
}

// In matches when a resolved value of Field equals one of Values.
type In struct {
	Field  string
	Values []string
}

// Match implements Expr.
func (in In) Match(doc map[string]any) bool {
	for _, v := range Resolve(doc, in.Field) {
		for _, want := range in.Values {
			if v == want {
				return true
			}
		}
	}
	return false
}

// Pattern matches when a resolved value of Field matches Regexp.
type Pattern struct {
	Field  string
	Regexp *regexp.Regexp
}

// Match implements Expr.
func (p Pattern) Match(doc map[string]any) bool {
	for _, v := range Resolve(doc, p.Field) {
		if p.Regexp.MatchString(v) {
			return true
		}
	}
	return false
}

// Eq matches documents whose field equals value.
func Eq(field, value string) In {
	return In{Field: field, Values: []string{value}}
}

// IsEmpty reports whether e places no constraint on documents.
func IsEmpty(e Expr) bool {
	switch x := e.(type) {
	case nil:
		return true
	case And:
		for _, branch := range x {
			if !IsEmpty(branch) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Matches evaluates e against doc; a nil expression matches everything.
func Matches(e Expr, doc map[string]any) bool {
	if e == nil {
		return true
	}
	return e.Match(doc)
}

var segmentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SplitField validates a field path and returns its segments.
func SplitField(field string) ([]string, error) {
	parts := strings.Split(field, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("field %q: at most two segments are supported", field)
	}
	for _, p := range parts {
		if !segmentRe.MatchString(p) {
			return nil, fmt.Errorf("field %q: invalid segment %q", field, p)
		}
	}
	return parts, nil
}

// Resolve returns the scalar values of field in doc, rendered as strings.
func Resolve(doc map[string]any, field string) []string {
	return resolve(doc, field, false)
}

// ResolveText is Resolve restricted to values stored as strings.
func ResolveText(doc map[string]any, field string) []string {
	return resolve(doc, field, true)
}

func resolve(doc map[string]any, field string, textOnly bool) []string {
	parts, err := SplitField(field)
	if err != nil {
		return nil
	}
	head := doc[parts[0]]
	if len(parts) == 1 {
		return scalars(head, textOnly, nil)
	}
	var out []string
	switch x := head.(type) {
	case map[string]any:
		out = scalars(x[parts[1]], textOnly, out)
	case []any:
		for _, el := range x {
			if m, ok := el.(map[string]any); ok {
				out = scalars(m[parts[1]], textOnly, out)
			}
		}
	}
	return out
}

// scalars appends v when it is a scalar, or its scalar elements when it is an array.
func scalars(v any, textOnly bool, out []string) []string {
	appendOne := func(el any) {
		if textOnly {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
			return
		}
		if s, ok := scalarString(el); ok {
			out = append(out, s)
		}
	}
	if arr, ok := v.([]any); ok {
		for _, el := range arr {
			appendOne(el)
		}
		return out
	}
	appendOne(v)
	return out
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
