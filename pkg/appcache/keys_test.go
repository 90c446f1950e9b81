package appcache

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildKeyDeterministic(t *testing.T) {
	call := Call{Args: []any{"abc", 42}}

	k1, err := BuildKey("ns", "fetch", call, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := BuildKey("ns", "fetch", call, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != k2 {
		t.Errorf("same call must produce the same key: %q vs %q", k1, k2)
	}
}

func TestBuildKeyNamespacePrefix(t *testing.T) {
	key, err := BuildKey("admin:promotions", "list", Call{Args: []any{"abc"}}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key, "admin:promotions:list") {
		t.Errorf("key should start with namespace and prefix, got %q", key)
	}
}

func TestBuildKeyNamespaceIsolation(t *testing.T) {
	call := Call{Args: []any{"abc"}}

	k1, _ := BuildKey("admin:promotions", "list", call, 0)
	k2, _ := BuildKey("search", "list", call, 0)
	if k1 == k2 {
		t.Errorf("different namespaces must never collide: %q", k1)
	}
}

func TestBuildKeyDistinguishesArgTypes(t *testing.T) {
	k1, _ := BuildKey("ns", "f", Call{Args: []any{"1"}}, 0)
	k2, _ := BuildKey("ns", "f", Call{Args: []any{1}}, 0)
	k3, _ := BuildKey("ns", "f", Call{Args: []any{true}}, 0)

	if k1 == k2 || k2 == k3 || k1 == k3 {
		t.Errorf("string/int/bool arguments must produce distinct keys: %q %q %q", k1, k2, k3)
	}
}

func TestBuildKeyPositionalOrder(t *testing.T) {
	k1, _ := BuildKey("ns", "f", Call{Args: []any{"a", "b"}}, 0)
	k2, _ := BuildKey("ns", "f", Call{Args: []any{"b", "a"}}, 0)
	if k1 == k2 {
		t.Error("positional argument order must be preserved in the key")
	}
}

func TestBuildKeyKwargsSorted(t *testing.T) {
	k1, _ := BuildKey("ns", "f", Call{Kwargs: map[string]any{"a": 1, "b": 2}}, 0)
	k2, _ := BuildKey("ns", "f", Call{Kwargs: map[string]any{"b": 2, "a": 1}}, 0)
	if k1 != k2 {
		t.Errorf("kwargs must be encoded in sorted order: %q vs %q", k1, k2)
	}
}

func TestBuildKeyNilArg(t *testing.T) {
	key, err := BuildKey("ns", "f", Call{Args: []any{nil}}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(key, "nil") {
		t.Errorf("nil argument should be encoded, got %q", key)
	}
}

func TestBuildKeyStructArg(t *testing.T) {
	type filter struct {
		Status string
		Limit  int
	}

	k1, err := BuildKey("ns", "f", Call{Args: []any{filter{"active", 10}}}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, _ := BuildKey("ns", "f", Call{Args: []any{filter{"active", 20}}}, 0)
	if k1 == k2 {
		t.Error("structs differing in a field must produce distinct keys")
	}
}

func TestBuildKeyMapArgStable(t *testing.T) {
	// Map iteration order is random; the key must not be.
	args := Call{Args: []any{map[string]int{"x": 1, "y": 2, "z": 3}}}
	k1, _ := BuildKey("ns", "f", args, 0)
	for i := 0; i < 20; i++ {
		k2, _ := BuildKey("ns", "f", args, 0)
		if k1 != k2 {
			t.Fatalf("map argument produced unstable keys: %q vs %q", k1, k2)
		}
	}
}

func TestBuildKeyTooLong(t *testing.T) {
	long := strings.Repeat("x", 2*MaxKeyLength)

	_, err := BuildKey("ns", "f", Call{Args: []any{long}}, 0)
	if err == nil {
		t.Fatal("expected KeyTooLongError")
	}

	var kerr *KeyTooLongError
	if !errors.As(err, &kerr) {
		t.Fatalf("expected KeyTooLongError, got %T: %v", err, err)
	}
	if kerr.Limit != MaxKeyLength {
		t.Errorf("expected limit %d, got %d", MaxKeyLength, kerr.Limit)
	}
	if !IsKeyTooLong(err) {
		t.Error("IsKeyTooLong should report true")
	}
}

func TestBuildKeyCustomLimit(t *testing.T) {
	_, err := BuildKey("ns", "f", Call{Args: []any{strings.Repeat("x", 100)}}, 32)
	if !IsKeyTooLong(err) {
		t.Fatalf("expected KeyTooLongError with custom limit, got %v", err)
	}
}

func TestBuildKeyNoArgs(t *testing.T) {
	key, err := BuildKey("ns", "refresh", Call{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "ns:refresh" {
		t.Errorf("expected bare ns:prefix key, got %q", key)
	}
}
