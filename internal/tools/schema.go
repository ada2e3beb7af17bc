package tools

import (
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mcpguard/toolgate/internal/mcp"
)

var (
	schemaOnce sync.Once
	schemas    map[Name]*jsonschema.Schema
)

func argsType(n Name) reflect.Type {
	switch n {
	case Add:
		return reflect.TypeOf(AddArgs{})
	case Calculate:
		return reflect.TypeOf(CalculateArgs{})
	case ScrapeWebpage:
		return reflect.TypeOf(ScrapeArgs{})
	case AnalyzeURL:
		return reflect.TypeOf(AnalyzeArgs{})
	default:
		return nil
	}
}

// InputSchema returns the JSON schema of the arguments accepted by n.
func InputSchema(n Name) *jsonschema.Schema {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			ExpandedStruct:             true,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			AllowAdditionalProperties:  true,
		}
		schemas = make(map[Name]*jsonschema.Schema, len(names))
		for _, name := range names {
			s := r.ReflectFromType(argsType(name))
			s.Version = ""
			schemas[name] = s
		}
	})
	return schemas[n]
}

// Definitions describes every tool for tools/list.
func (t *Toolbox) Definitions() []mcp.Tool {
	all := Names()
	list := make([]mcp.Tool, 0, len(all))
	for _, n := range all {
		list = append(list, mcp.Tool{
			Name:        string(n),
			Description: n.Description(),
			InputSchema: InputSchema(n),
		})
	}
	return list
}
