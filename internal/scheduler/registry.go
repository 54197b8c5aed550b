package scheduler

import (
	"fmt"
	"sort"
)

var factories = map[string]func() Policy{
	"dls":          func() Policy { return NewDLS(false) },
	"dls-extended": func() Policy { return NewDLS(true) },
	"etf":          func() Policy { return NewETF() },
	"mcp":          func() Policy { return NewMCP() },
	"last":         func() Policy { return NewLAST() },
	"k1h":          func() Policy { return NewK1h() },
}

// New builds a reference policy by name. Names returns the accepted set.
func New(name string) (Policy, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: unknown policy %q (have %v)", name, Names())
	}
	return f(), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
