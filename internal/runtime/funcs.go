package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/risor-io/risor/object"
)

// Func is a host function exposed to scripts. Arguments arrive as plain Go
// values (string, int64, float64, bool, nil, []any, map[string]any). The
// result goes back to the script through its JSON form, so structs appear
// as maps keyed by their json tags.
type Func func(ctx context.Context, args ...any) (any, error)

// makeHostFn adapts fn to a Risor builtin. Errors are raised in the script.
func makeHostFn(name string, fn Func) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		goArgs := make([]any, len(args))
		for i, arg := range args {
			goArgs[i] = arg.Interface()
		}
		res, err := fn(ctx, goArgs...)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		obj, err := toObject(res)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return obj
	})
}

// toObject converts v to a Risor object via its JSON encoding.
func toObject(v any) (object.Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return fromGeneric(generic), nil
}

func fromGeneric(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case bool:
		return object.NewBool(v)
	case string:
		return object.NewString(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return object.NewInt(i)
		}
		f, _ := v.Float64()
		return object.NewFloat(f)
	case []any:
		items := make([]object.Object, len(v))
		for i, item := range v {
			items[i] = fromGeneric(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(v))
		for k, item := range v {
			m[k] = fromGeneric(item)
		}
		return object.NewMap(m)
	}
	return object.NewString(fmt.Sprint(v))
}

// StringArg returns args[i] as a string.
func StringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i+1, args[i])
	}
	return s, nil
}

// StringArgs returns args[from:] as strings.
func StringArgs(args []any, from int) ([]string, error) {
	var out []string
	for i := from; i < len(args); i++ {
		s, err := StringArg(args, i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// IntArg returns args[i] as an int, or def when absent.
func IntArg(args []any, i int, def int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	switch v := args[i].(type) {
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("argument %d: expected int, got %T", i+1, args[i])
}
