package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/logger"
	"github.com/modularizer/fishook/internal/patterns"
)

// Block is the canonical unit of configuration for one hook within one config.
type Block struct {
	// Index is the block's position within the hook's entry, for diagnostics.
	Index int
	// Run holds one-shot commands executed once per invocation, before events.
	Run []string
	// Handlers maps handler keys to per-event commands.
	Handlers map[event.HandlerKey][]string
	// ApplyTo restricts file events to matching paths; empty matches all.
	ApplyTo []string
	// SkipList rejects file events with matching paths.
	SkipList []string
}

// Empty reports whether the block contributes no commands at all.
func (b Block) Empty() bool {
	if len(b.Run) > 0 {
		return false
	}
	for _, cmds := range b.Handlers {
		if len(cmds) > 0 {
			return false
		}
	}
	return true
}

// Raw returns the block in its canonical object form. Normalizing the result
// yields an identical block.
func (b Block) Raw() map[string]any {
	out := make(map[string]any)
	if len(b.Run) > 0 {
		out["run"] = toAny(b.Run)
	}
	for key, cmds := range b.Handlers {
		out[string(key)] = toAny(cmds)
	}
	if len(b.ApplyTo) > 0 {
		out["applyTo"] = toAny(b.ApplyTo)
	}
	if len(b.SkipList) > 0 {
		out["skipList"] = toAny(b.SkipList)
	}
	return out
}

// rawBlock is the object shape of an action value. Keys match exactly;
// everything else is a handler key or unknown.
type rawBlock struct {
	Run      any `mapstructure:"run"`
	Commands any `mapstructure:"commands"`
	ApplyTo  any `mapstructure:"applyTo"`
	SkipList any `mapstructure:"skipList"`
}

var blockFieldKeys = map[string]bool{"run": true, "commands": true, "applyTo": true, "skipList": true}

var handlerKeySet = func() map[string]event.HandlerKey {
	m := make(map[string]event.HandlerKey, len(event.HandlerKeys))
	for _, k := range event.HandlerKeys {
		m[string(k)] = k
	}
	return m
}()

// Normalize converts the raw action value for hook into ordered blocks.
//
// Accepted shapes: a command string, a list of command strings, an object,
// or a list of objects. Anything else is an InvalidConfigShape error.
func Normalize(hook string, raw any) ([]Block, error) {
	switch v := raw.(type) {
	case string:
		return []Block{{Run: []string{v}}}, nil
	case []string:
		return []Block{{Run: append([]string(nil), v...)}}, nil
	case map[string]any:
		b, err := normalizeObject(hook, hook, v)
		if err != nil {
			return nil, err
		}
		return []Block{b}, nil
	case map[any]any:
		m, err := stringKeys(v)
		if err != nil {
			return nil, shapeError(hook, hook, err)
		}
		return Normalize(hook, m)
	case []any:
		return normalizeList(hook, v)
	case []map[string]any:
		// TOML arrays of tables
		return normalizeList(hook, mapsToAny(v))
	default:
		return nil, shapeError(hook, hook, fmt.Errorf("expected string, list, or object, got %s", typeName(raw)))
	}
}

func normalizeList(hook string, list []any) ([]Block, error) {
	if len(list) == 0 {
		return nil, nil
	}

	if _, isString := list[0].(string); isString {
		cmds := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, shapeError(hook, fmt.Sprintf("%s[%d]", hook, i),
					fmt.Errorf("list mixes commands and %s", typeName(item)))
			}
			cmds = append(cmds, s)
		}
		return []Block{{Run: cmds}}, nil
	}

	blocks := make([]Block, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("%s[%d]", hook, i)
		var obj map[string]any
		switch v := item.(type) {
		case map[string]any:
			obj = v
		case map[any]any:
			m, err := stringKeys(v)
			if err != nil {
				return nil, shapeError(hook, path, err)
			}
			obj = m
		default:
			return nil, shapeError(hook, path, fmt.Errorf("list mixes objects and %s", typeName(item)))
		}
		b, err := normalizeObject(hook, path, obj)
		if err != nil {
			return nil, err
		}
		b.Index = i
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func normalizeObject(hook, path string, obj map[string]any) (Block, error) {
	var rb rawBlock
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:    &rb,
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
	})
	if err != nil {
		return Block{}, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(obj); err != nil {
		return Block{}, shapeError(hook, path, err)
	}

	var b Block
	fields := []struct {
		name string
		raw  any
		dst  *[]string
	}{
		{"run", rb.Run, &b.Run},
		{"applyTo", rb.ApplyTo, &b.ApplyTo},
		{"skipList", rb.SkipList, &b.SkipList},
	}
	for _, f := range fields {
		list, err := stringList(f.raw)
		if err != nil {
			return Block{}, shapeError(hook, path+"."+f.name, err)
		}
		*f.dst = list
	}
	for _, f := range fields[1:] {
		if _, err := patterns.CompileSet(*f.dst); err != nil {
			return Block{}, shapeError(hook, path+"."+f.name, err)
		}
	}

	commands, err := stringList(rb.Commands)
	if err != nil {
		return Block{}, shapeError(hook, path+".commands", err)
	}
	b.Run = append(b.Run, commands...)

	// Sorted so unknown-key warnings come out in a stable order.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if !blockFieldKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		hk, ok := handlerKeySet[k]
		if !ok {
			logger.Warn("ignoring unknown action key", "hook", hook, "path", path, "key", k)
			continue
		}
		cmds, err := stringList(obj[k])
		if err != nil {
			return Block{}, shapeError(hook, path+"."+k, err)
		}
		if len(cmds) == 0 {
			continue
		}
		if b.Handlers == nil {
			b.Handlers = make(map[event.HandlerKey][]string)
		}
		b.Handlers[hk] = cmds
	}
	return b, nil
}

// stringList accepts a string or a list of strings. nil yields nil.
func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %s", i, typeName(item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %s", typeName(v))
	}
}

func stringKeys(m map[any]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		s, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", k)
		}
		out[s] = v
	}
	return out, nil
}

func mapsToAny(maps []map[string]any) []any {
	out := make([]any, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64, uint64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case []map[string]any:
		return "list of objects"
	case map[string]any, map[any]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func shapeError(hook, path string, cause error) *errs.Error {
	e := errs.Wrap(cause, errs.InvalidConfigShape, "invalid action value at %s", path)
	if hook != "" {
		e.WithDetail("hook", hook)
	}
	return e.WithDetail("path", path)
}
