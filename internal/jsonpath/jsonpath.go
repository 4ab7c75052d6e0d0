// Package jsonpath implements the json-body-modify component's narrow
// path grammar: seg(.seg|[idx])*, e.g. "user.name", "items[0].price". It
// operates on the generic tree encoding/json produces when decoding into
// interface{} (map[string]interface{}, []interface{}, and scalars) and
// supports set, remove, and append in place.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Op selects the mutation json-body-modify performs at a path.
type Op string

const (
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpAppend Op = "append"
)

type segment struct {
	key      string // object key; empty when index is set
	index    int
	isIndex  bool
}

// parse splits a path string into its ordered segments.
func parse(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("jsonpath: empty path")
	}

	var segs []segment
	i := 0
	n := len(path)
	expectKey := true

	for i < n {
		switch {
		case path[i] == '.':
			i++
			expectKey = true
		case path[i] == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("jsonpath: unterminated [ in %q", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("jsonpath: invalid index %q in %q", idxStr, path)
			}
			segs = append(segs, segment{index: idx, isIndex: true})
			i += end + 1
			expectKey = false
		default:
			start := i
			for i < n && path[i] != '.' && path[i] != '[' {
				i++
			}
			if !expectKey && start == 0 {
				return nil, fmt.Errorf("jsonpath: malformed path %q", path)
			}
			key := path[start:i]
			if key == "" {
				return nil, fmt.Errorf("jsonpath: empty segment in %q", path)
			}
			segs = append(segs, segment{key: key})
			expectKey = false
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("jsonpath: no segments parsed from %q", path)
	}
	return segs, nil
}

// Set writes value at path within root, creating missing intermediate
// objects as needed. root must be the top-level decoded value (typically a
// map[string]interface{}); Set returns the (possibly replaced) root.
func Set(root interface{}, path string, value interface{}) (interface{}, error) {
	segs, err := parse(path)
	if err != nil {
		return root, err
	}
	return apply(root, segs, OpSet, value)
}

// Remove deletes the value at path within root, splicing arrays and
// deleting object keys as appropriate.
func Remove(root interface{}, path string) (interface{}, error) {
	segs, err := parse(path)
	if err != nil {
		return root, err
	}
	return apply(root, segs, OpRemove, nil)
}

// Append adds value to the list found at path, coercing a scalar or
// missing value at that path into a single-element list first.
func Append(root interface{}, path string, value interface{}) (interface{}, error) {
	segs, err := parse(path)
	if err != nil {
		return root, err
	}
	return apply(root, segs, OpAppend, value)
}

// Apply performs op at path against root with the given value (ignored for
// OpRemove).
func Apply(root interface{}, path string, op Op, value interface{}) (interface{}, error) {
	segs, err := parse(path)
	if err != nil {
		return root, err
	}
	return apply(root, segs, op, value)
}

func apply(root interface{}, segs []segment, op Op, value interface{}) (interface{}, error) {
	if len(segs) == 0 {
		return root, fmt.Errorf("jsonpath: empty path")
	}
	return applyAt(root, segs, op, value)
}

// applyAt navigates to segs[0], recursing until the final segment, then
// performs the mutation. It returns the (possibly new) value that should
// replace the slot the caller holds, so intermediate containers can be
// rebuilt when they started out nil or of the wrong concrete type.
func applyAt(node interface{}, segs []segment, op Op, value interface{}) (interface{}, error) {
	seg := segs[0]
	last := len(segs) == 1

	if seg.isIndex {
		list, ok := node.([]interface{})
		if !ok {
			if node == nil {
				list = []interface{}{}
			} else {
				return node, fmt.Errorf("jsonpath: expected array at index %d, got %T", seg.index, node)
			}
		}
		if last {
			switch op {
			case OpSet:
				list = growList(list, seg.index)
				list[seg.index] = value
			case OpRemove:
				if seg.index >= 0 && seg.index < len(list) {
					list = append(list[:seg.index], list[seg.index+1:]...)
				}
			case OpAppend:
				if seg.index >= 0 && seg.index < len(list) {
					list[seg.index] = appendValue(list[seg.index], value)
				} else {
					list = growList(list, seg.index)
					list[seg.index] = []interface{}{value}
				}
			default:
				return node, fmt.Errorf("jsonpath: unknown op %q", op)
			}
			return list, nil
		}

		list = growList(list, seg.index)
		child, err := applyAt(list[seg.index], segs[1:], op, value)
		if err != nil {
			return node, err
		}
		list[seg.index] = child
		return list, nil
	}

	obj, ok := node.(map[string]interface{})
	if !ok {
		if node == nil {
			obj = map[string]interface{}{}
		} else {
			return node, fmt.Errorf("jsonpath: expected object at key %q, got %T", seg.key, node)
		}
	}

	if last {
		switch op {
		case OpSet:
			obj[seg.key] = value
		case OpRemove:
			delete(obj, seg.key)
		case OpAppend:
			obj[seg.key] = appendValue(obj[seg.key], value)
		default:
			return node, fmt.Errorf("jsonpath: unknown op %q", op)
		}
		return obj, nil
	}

	child, err := applyAt(obj[seg.key], segs[1:], op, value)
	if err != nil {
		return node, err
	}
	obj[seg.key] = child
	return obj, nil
}

// growList extends list with nils so index is addressable.
func growList(list []interface{}, index int) []interface{} {
	if index < 0 {
		return list
	}
	for len(list) <= index {
		list = append(list, nil)
	}
	return list
}

// appendValue coerces a scalar (or nil) existing value into a list before
// appending, per the append operation's documented semantics.
func appendValue(existing interface{}, value interface{}) []interface{} {
	switch t := existing.(type) {
	case []interface{}:
		return append(t, value)
	case nil:
		return []interface{}{value}
	default:
		return []interface{}{t, value}
	}
}
