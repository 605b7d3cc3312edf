package parser

import (
	"strings"
)

type TokenKind int

const (
	KindOther TokenKind = iota
	KindDoc
	KindFunction
	KindVariable
	KindStruct
	KindUnion
	KindEnum
	KindCallback
	KindAlias
	KindForward
	KindDef
	KindTemplate
	KindEnd
)

var tokenKindNames = [...]string{
	KindOther:    "other",
	KindDoc:      "doc",
	KindFunction: "function",
	KindVariable: "variable",
	KindStruct:   "struct",
	KindUnion:    "union",
	KindEnum:     "enum",
	KindCallback: "callback",
	KindAlias:    "alias",
	KindForward:  "forward",
	KindDef:      "def",
	KindTemplate: "template",
	KindEnd:      "end",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "unknown"
}

// Token is one syntactic unit recovered from source. Lines are 1-based and
// the range is [Begin, End).
type Token struct {
	Kind       TokenKind
	Value      string
	Type       string
	Parameters []string
	Immutable  bool
	Begin      int
	Decl       int
	End        int
	Spaces     int
	Init       string
	Doc        string
	Body       []string
	BodyLine   int
	Template   []string
}

type EntryKind string

const (
	EntryAlias    EntryKind = "alias"
	EntryCallback EntryKind = "callback"
	EntryDef      EntryKind = "def"
	EntryEnum     EntryKind = "enum"
	EntryFunction EntryKind = "function"
	EntryStruct   EntryKind = "struct"
	EntryUnion    EntryKind = "union"
	EntryForward  EntryKind = "forward"
	EntryVar      EntryKind = "var"
)

type Param struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Default string `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Raw     string `json:"raw,omitempty" yaml:"raw,omitempty" toml:"raw,omitempty"`
}

func (p Param) String() string {
	if p.Raw != "" {
		return p.Raw
	}

	var b strings.Builder
	b.WriteString(p.Type)
	if p.Name != "" {
		if p.Type != "" && !strings.HasSuffix(p.Type, "*") && !strings.HasSuffix(p.Type, "&") {
			b.WriteByte(' ')
		}
		b.WriteString(p.Name)
	}
	if p.Default != "" {
		b.WriteString(" = ")
		b.WriteString(p.Default)
	}

	return b.String()
}

type Entry struct {
	Name       string    `json:"name" yaml:"name"`
	Kind       EntryKind `json:"kind" yaml:"kind"`
	Type       string    `json:"type,omitempty" yaml:"type,omitempty"`
	Parameters []Param   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Template   []string  `json:"template,omitempty" yaml:"template,omitempty"`
	Value      string    `json:"value,omitempty" yaml:"value,omitempty"`
	Immutable  bool      `json:"immutable,omitempty" yaml:"immutable,omitempty"`
	Doc        string    `json:"doc,omitempty" yaml:"doc,omitempty"`
	Entries    *EntryMap `json:"entries,omitempty" yaml:"entries,omitempty"`
	SourceName string    `json:"sourceName,omitempty" yaml:"sourceName,omitempty"`
	Begin      int       `json:"begin,omitempty" yaml:"begin,omitempty"`
	Decl       int       `json:"decl,omitempty" yaml:"decl,omitempty"`
	End        int       `json:"end,omitempty" yaml:"end,omitempty"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	c := e
	if e.Parameters != nil {
		c.Parameters = append([]Param(nil), e.Parameters...)
	}
	if e.Template != nil {
		c.Template = append([]string(nil), e.Template...)
	}
	if e.Entries != nil {
		c.Entries = e.Entries.Clone()
	}
	return c
}

type ApiFile struct {
	Name    string    `json:"name" yaml:"name"`
	Doc     string    `json:"doc,omitempty" yaml:"doc,omitempty"`
	Entries *EntryMap `json:"entries" yaml:"entries"`
}

func NewApiFile(name string) *ApiFile {
	return &ApiFile{
		Name:    name,
		Entries: NewEntryMap(),
	}
}

// CType is a declared type split into its qualifiers.
type CType struct {
	Name     string
	IsConst  bool
	Pointers int
	IsRef    bool
	Array    string
}

// ParseCType splits a type spelling such as "const char*" or "int[4]".
// Only a leading const is treated as a qualifier; "char *const" keeps its
// trailing const in Name.
func ParseCType(typeStr string) CType {
	ct := CType{}
	s := strings.TrimSpace(typeStr)

	if i := strings.IndexByte(s, '['); i != -1 && strings.HasSuffix(s, "]") {
		ct.Array = s[i:]
		s = strings.TrimSpace(s[:i])
	}

	if strings.HasPrefix(s, "const ") {
		ct.IsConst = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "const "))
	}

	for {
		switch {
		case strings.HasSuffix(s, "*"):
			ct.Pointers++
			s = strings.TrimSpace(strings.TrimSuffix(s, "*"))
			continue
		case strings.HasSuffix(s, "&") && ct.Pointers == 0 && !ct.IsRef:
			ct.IsRef = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "&"))
			continue
		}
		break
	}

	ct.Name = strings.Join(strings.Fields(s), " ")

	return ct
}

func (ct CType) String() string {
	var b strings.Builder
	if ct.IsConst {
		b.WriteString("const ")
	}
	b.WriteString(ct.Name)
	if ct.Pointers > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Repeat("*", ct.Pointers))
	}
	if ct.IsRef {
		if ct.Pointers == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('&')
	}
	b.WriteString(ct.Array)

	return b.String()
}

// NormalizeType rewrites a type spelling to the canonical form used as a
// substitution key: single spaces, pointer stars separated from the name.
func NormalizeType(typeStr string) string {
	if strings.TrimSpace(typeStr) == "" {
		return ""
	}
	if strings.Contains(typeStr, "(") {
		return strings.Join(strings.Fields(typeStr), " ")
	}
	return ParseCType(typeStr).String()
}
