package appcache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// MaxKeyLength is the default limit on generated key length. Keys over the
// limit fail with KeyTooLongError rather than being hashed: a hashed key is
// unreadable in the backend and un-matchable by pattern invalidation.
const MaxKeyLength = 512

// Call describes one invocation of a cached function: its inputs, and after
// the function ran, its result. Key builders see Args and Kwargs; dynamic
// tag functions additionally see Result.
type Call struct {
	// Args are the positional arguments, in call order.
	Args []any

	// Kwargs are named arguments for callers that address the cache
	// directly rather than through a wrapped function.
	Kwargs map[string]any

	// Result is the function's return value. Only set for tag functions
	// that run after a successful call; nil while building keys.
	Result any
}

// KeyBuilderFunc produces a cache key from an invocation. The returned key
// is used verbatim (after namespace prefixing), so it must encode every
// argument that distinguishes one result from another.
type KeyBuilderFunc func(call Call) string

// TagsFunc computes tags for an invocation. For cached reads it runs before
// the value is stored, with Result set; for invalidating writes it runs
// after the write succeeded.
type TagsFunc func(call Call) []string

// ConditionFunc decides whether a computed result should be cached.
type ConditionFunc func(call Call) bool

// BuildKey assembles the full cache key: namespace, prefix, then every
// positional argument in order and every named argument in sorted order.
// It returns a KeyTooLongError if the result exceeds limit.
func BuildKey(namespace, prefix string, call Call, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxKeyLength
	}

	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(prefix)

	for _, arg := range call.Args {
		b.WriteByte(':')
		b.WriteString(argKey(arg))
	}

	if len(call.Kwargs) > 0 {
		names := make([]string, 0, len(call.Kwargs))
		for name := range call.Kwargs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteByte(':')
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(argKey(call.Kwargs[name]))
		}
	}

	key := b.String()
	if len(key) > limit {
		return "", &KeyTooLongError{Key: key, Length: len(key), Limit: limit}
	}
	return key, nil
}

// argKey converts a single argument to a stable string form. Each scalar
// carries a type sigil so that "1", 1 and true produce distinct keys.
func argKey(arg any) string {
	if arg == nil {
		return "nil"
	}

	v := reflect.ValueOf(arg)
	t := v.Type()

	switch t.Kind() {
	case reflect.String:
		return "s:" + v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "i:" + strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "u:" + strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return "f:" + strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Bool:
		return "b:" + strconv.FormatBool(v.Bool())
	case reflect.Ptr:
		if v.IsNil() {
			return "ptr:nil"
		}
		return "ptr:" + argKey(v.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return sliceKey(v)
	case reflect.Map:
		return mapKey(v)
	case reflect.Struct:
		return structKey(v, t)
	case reflect.Interface:
		if v.IsNil() {
			return "iface:nil"
		}
		return "iface:" + argKey(v.Elem().Interface())
	default:
		return fmt.Sprintf("%T:%v", arg, arg)
	}
}

func sliceKey(v reflect.Value) string {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return "slice:nil"
	}

	length := v.Len()
	if length == 0 {
		return "slice:empty"
	}

	elements := make([]string, length)
	for i := 0; i < length; i++ {
		elements[i] = argKey(v.Index(i).Interface())
	}
	return "slice:[" + strings.Join(elements, ",") + "]"
}

func mapKey(v reflect.Value) string {
	if v.IsNil() {
		return "map:nil"
	}

	keys := v.MapKeys()
	if len(keys) == 0 {
		return "map:empty"
	}

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = argKey(key.Interface()) + "=" + argKey(v.MapIndex(key).Interface())
	}
	// Map iteration order is random; sort for a stable key.
	sort.Strings(pairs)

	return "map:{" + strings.Join(pairs, ",") + "}"
}

func structKey(v reflect.Value, t reflect.Type) string {
	numFields := v.NumField()
	if numFields == 0 {
		return "struct:empty"
	}

	var fields []string
	for i := 0; i < numFields; i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := v.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		fields = append(fields, field.Name+":"+argKey(fieldValue.Interface()))
	}

	structName := t.Name()
	if structName == "" {
		structName = "anonymous"
	}

	return "struct:" + structName + "{" + strings.Join(fields, ",") + "}"
}
