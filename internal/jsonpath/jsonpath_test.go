package jsonpath

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode(%q): %v", s, err)
	}
	return v
}

func TestSetNestedKey(t *testing.T) {
	root := decode(t, `{"user":{"name":"old"}}`)
	out, err := Set(root, "user.name", "new")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	m := out.(map[string]interface{})
	if m["user"].(map[string]interface{})["name"] != "new" {
		t.Errorf("Set() did not update nested key")
	}
}

func TestSetCreatesMissingIntermediateObjects(t *testing.T) {
	root := decode(t, `{}`)
	out, err := Set(root, "a.b.c", 1.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	m := out.(map[string]interface{})
	a := m["a"].(map[string]interface{})
	b := a["b"].(map[string]interface{})
	if b["c"] != 1.0 {
		t.Errorf("Set() did not create missing intermediates, got %#v", out)
	}
}

func TestSetArrayIndex(t *testing.T) {
	root := decode(t, `{"items":[{"price":1},{"price":2}]}`)
	out, err := Set(root, "items[1].price", 99.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	m := out.(map[string]interface{})
	items := m["items"].([]interface{})
	if items[1].(map[string]interface{})["price"] != 99.0 {
		t.Errorf("Set() did not update array element")
	}
}

func TestSetIsIdempotent(t *testing.T) {
	root := decode(t, `{"user":{"name":"old"}}`)
	first, err := Set(root, "user.name", "new")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	second, err := Set(first, "user.name", "new")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Set() applied twice should be idempotent: %#v vs %#v", first, second)
	}
}

func TestRemoveDeletesObjectKey(t *testing.T) {
	root := decode(t, `{"a":1,"b":2}`)
	out, err := Remove(root, "a")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	m := out.(map[string]interface{})
	if _, ok := m["a"]; ok {
		t.Error("Remove() did not delete key")
	}
	if m["b"] != 2.0 {
		t.Error("Remove() should not affect sibling keys")
	}
}

func TestRemoveSplicesArray(t *testing.T) {
	root := decode(t, `{"items":[1,2,3]}`)
	out, err := Remove(root, "items[1]")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	m := out.(map[string]interface{})
	items := m["items"].([]interface{})
	if len(items) != 2 || items[0] != 1.0 || items[1] != 3.0 {
		t.Errorf("Remove() did not splice array correctly: %#v", items)
	}
}

func TestAppendCoercesScalarToList(t *testing.T) {
	root := decode(t, `{"tag":"first"}`)
	out, err := Append(root, "tag", "second")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	m := out.(map[string]interface{})
	list, ok := m["tag"].([]interface{})
	if !ok {
		t.Fatalf("Append() did not coerce scalar to list: %#v", m["tag"])
	}
	if len(list) != 2 || list[0] != "first" || list[1] != "second" {
		t.Errorf("Append() produced wrong list: %#v", list)
	}
}

func TestAppendOnMissingPathCreatesList(t *testing.T) {
	root := decode(t, `{}`)
	out, err := Append(root, "tags", "x")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	m := out.(map[string]interface{})
	list := m["tags"].([]interface{})
	if len(list) != 1 || list[0] != "x" {
		t.Errorf("Append() on missing path = %#v", list)
	}
}

func TestParseRejectsEmptyPath(t *testing.T) {
	if _, err := parse(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestParseRejectsUnterminatedIndex(t *testing.T) {
	if _, err := parse("items[0"); err == nil {
		t.Error("expected error for unterminated index")
	}
}
