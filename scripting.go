package pdom

import (
	"context"
	"fmt"

	"github.com/jward/pdom/internal/runtime"
)

// RunScript runs the Risor script name (with or without its .risor
// extension) against the engine's stores. args is visible to the script
// as the global args. The result is the value of the script's last
// expression.
func (e *Engine) RunScript(ctx context.Context, name string, args []string) (any, error) {
	if args == nil {
		args = []string{}
	}
	rt := e.newRuntime(e.logger.WithFile(name))
	res, err := rt.RunScript(ctx, name, map[string]any{"args": args})
	if err != nil {
		return nil, fmt.Errorf("run script %s: %w", name, err)
	}
	return res, nil
}

// RunSource runs Risor source against the engine's stores.
func (e *Engine) RunSource(ctx context.Context, src string, args []string) (any, error) {
	if args == nil {
		args = []string{}
	}
	return e.newRuntime(e.logger).RunSource(ctx, src, map[string]any{"args": args})
}

// Scripts lists the names of the available scripts.
func (e *Engine) Scripts() ([]string, error) {
	return e.newRuntime(e.logger).Scripts()
}

func (e *Engine) newRuntime(logger *Logger) *runtime.Runtime {
	opts := []runtime.RuntimeOption{runtime.WithLogger(logger.Logger)}
	if e.scriptsFS != nil {
		opts = append(opts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	for name, fn := range scriptFuncs(e.Query()) {
		opts = append(opts, runtime.WithFunc(name, fn))
	}
	return runtime.NewRuntime(e.scriptsDir, opts...)
}

// scriptFuncs maps script globals to queries. Functions taking a name
// accept binding kind names after it: find_binding("count", "variable").
func scriptFuncs(q *QueryBuilder) map[string]runtime.Func {
	return map[string]runtime.Func{
		"find_binding":      byName(q.FindBinding),
		"definitions":       byName(q.Definitions),
		"declarations":      byName(q.Declarations),
		"references":        byName(q.References),
		"describe":          byName(q.Describe),
		"files_for_binding": byName(q.FilesForBinding),
		"fields":            byNameOnly(q.Fields),
		"enumerators":       byNameOnly(q.Enumerators),
		"parameters":        byNameOnly(q.Parameters),
		"search": func(ctx context.Context, args ...any) (any, error) {
			prefix, err := runtime.StringArg(args, 0)
			if err != nil {
				return nil, err
			}
			kinds, err := scriptKinds(args, 1)
			if err != nil {
				return nil, err
			}
			return searchAll(q, prefix, SearchFilter{Kinds: kinds})
		},
		"files": func(ctx context.Context, args ...any) (any, error) {
			files, err := q.Files()
			return nonNil(files, err)
		},
		"unit_errors": func(ctx context.Context, args ...any) (any, error) {
			path, err := runtime.StringArg(args, 0)
			if err != nil {
				return nil, err
			}
			msgs, err := q.UnitErrors(path)
			return nonNil(msgs, err)
		},
		"stats": func(ctx context.Context, args ...any) (any, error) {
			return q.Stats()
		},
	}
}

func byName[T any](fn func(string, ...Kind) ([]T, error)) runtime.Func {
	return func(ctx context.Context, args ...any) (any, error) {
		name, err := runtime.StringArg(args, 0)
		if err != nil {
			return nil, err
		}
		kinds, err := scriptKinds(args, 1)
		if err != nil {
			return nil, err
		}
		items, err := fn(name, kinds...)
		return nonNil(items, err)
	}
}

func byNameOnly[T any](fn func(string) ([]T, error)) runtime.Func {
	return func(ctx context.Context, args ...any) (any, error) {
		name, err := runtime.StringArg(args, 0)
		if err != nil {
			return nil, err
		}
		items, err := fn(name)
		return nonNil(items, err)
	}
}

// nonNil turns a nil result into an empty list so scripts can range over
// every query result.
func nonNil[T any](items []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func scriptKinds(args []any, from int) ([]Kind, error) {
	names, err := runtime.StringArgs(args, from)
	if err != nil {
		return nil, err
	}
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		k, ok := ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("unknown kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// searchAll pages through Search until every match is collected.
func searchAll(q *QueryBuilder, prefix string, filter SearchFilter) ([]BindingInfo, error) {
	all := []BindingInfo{}
	page := Pagination{Limit: maxLimit}
	for {
		res, err := q.Search(prefix, filter, page)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
		page.Offset += len(res.Items)
		if len(res.Items) == 0 || page.Offset >= res.TotalCount {
			return all, nil
		}
	}
}
