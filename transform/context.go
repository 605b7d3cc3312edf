package transform

import (
	"maps"

	"github.com/ardanlabs/hdrgen/parser"
)

// Context is the type substitution environment of one run. Parameter and
// return lookups consult their own map first and fall back to the base map.
type Context struct {
	base  map[string]string
	param map[string]string
	ret   map[string]string
}

// NewContext seeds a context with copies of the given maps. Keys are
// normalized so "char*" and "char *" match.
func NewContext(base, param, ret map[string]string) *Context {
	return &Context{
		base:  normalized(base),
		param: normalized(param),
		ret:   normalized(ret),
	}
}

func normalized(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[parser.NormalizeType(k)] = v
	}
	return out
}

// Clone returns an independent copy.
func (c *Context) Clone() *Context {
	return &Context{
		base:  maps.Clone(c.base),
		param: maps.Clone(c.param),
		ret:   maps.Clone(c.ret),
	}
}

// Type maps t through the base map.
func (c *Context) Type(t string) string {
	n := parser.NormalizeType(t)
	if v, ok := c.base[n]; ok {
		return v
	}
	return n
}

// ParamType maps a parameter type.
func (c *Context) ParamType(t string) string {
	n := parser.NormalizeType(t)
	if v, ok := c.param[n]; ok {
		return v
	}
	return c.Type(n)
}

// ReturnType maps a return type.
func (c *Context) ReturnType(t string) string {
	n := parser.NormalizeType(t)
	if v, ok := c.ret[n]; ok {
		return v
	}
	return c.Type(n)
}

// Register records src -> dst in the base map in plain, pointer, const and
// const pointer form. Identity renames are ignored.
func (c *Context) Register(src, dst string) {
	if src == "" || dst == "" || src == dst {
		return
	}
	for _, f := range forms(src, dst) {
		c.base[f[0]] = f[1]
	}
}

// RegisterParam records by-value and by-pointer forms of src in the
// parameter map.
func (c *Context) RegisterParam(src, dst string) {
	c.param[parser.NormalizeType(src)] = dst
	c.param[parser.NormalizeType(src+" *")] = dst
}

// RegisterReturn records by-value and by-pointer forms of src in the return
// map.
func (c *Context) RegisterReturn(src, dst string) {
	c.ret[parser.NormalizeType(src)] = dst
	c.ret[parser.NormalizeType(src+" *")] = dst
}

func forms(src, dst string) [][2]string {
	return [][2]string{
		{parser.NormalizeType(src), dst},
		{parser.NormalizeType(src + " *"), dst + " *"},
		{parser.NormalizeType("const " + src), "const " + dst},
		{parser.NormalizeType("const " + src + " *"), "const " + dst + " *"},
	}
}
