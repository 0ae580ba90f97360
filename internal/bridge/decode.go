package bridge

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/pyvalue"
	"github.com/ctagard/dap-viewer/internal/result"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// decodeObjectTypes expects a list of (group, type) string pairs.
func decodeObjectTypes(v pyvalue.Value) result.Result[[]types.ObjectType] {
	list, ok := v.(pyvalue.List)
	if !ok {
		return shapeErr[[]types.ObjectType]("list of (group, type) tuples", v)
	}

	out := make([]types.ObjectType, 0, len(list))
	for _, item := range list {
		pair, ok := item.(pyvalue.Tuple)
		if !ok || len(pair) != 2 {
			return shapeErr[[]types.ObjectType]("(group, type) tuple", item)
		}
		group, gok := pair[0].(pyvalue.String)
		typ, tok := pair[1].(pyvalue.String)
		if !gok || !tok {
			return shapeErr[[]types.ObjectType]("(group, type) tuple of strings", item)
		}
		out = append(out, types.ObjectType{Group: string(group), Type: string(typ)})
	}
	return result.Ok(out)
}

// decodeInfo expects a mapping whose values are all strings.
func decodeInfo(v pyvalue.Value) result.Result[*orderedmap.OrderedMap[string, string]] {
	m, ok := v.(pyvalue.Mapping)
	if !ok {
		return shapeErr[*orderedmap.OrderedMap[string, string]]("mapping of strings", v)
	}

	info := orderedmap.New[string, string](orderedmap.WithCapacity[string, string](len(m)))
	for _, e := range m {
		s, ok := e.Value.(pyvalue.String)
		if !ok {
			return shapeErr[*orderedmap.OrderedMap[string, string]]("string value for "+e.Key, e.Value)
		}
		info.Set(e.Key, string(s))
	}
	return result.Ok(info)
}

func shapeErr[T any](expected string, got pyvalue.Value) result.Result[T] {
	return result.FromError[T](errors.UnexpectedShape(expected, got.Kind().String()))
}
