// Package config holds the transformation rules and the CLI settings.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	burnt "github.com/BurntSushi/toml"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	hdrerrors "github.com/ardanlabs/hdrgen/errors"
	"github.com/ardanlabs/hdrgen/parser"
)

// Type rule kinds.
const (
	ResourceKind = "resource"
	AliasKind    = "alias"
)

// Config represents a complete rules file.
type Config struct {
	Namespace        string                `json:"namespace,omitempty" yaml:"namespace,omitempty" toml:"namespace,omitempty"`
	LibraryPrefix    string                `json:"libraryPrefix,omitempty" yaml:"libraryPrefix,omitempty" toml:"libraryPrefix,omitempty"`
	MasterInclude    string                `json:"masterInclude,omitempty" yaml:"masterInclude,omitempty" toml:"masterInclude,omitempty"`
	Guard            string                `json:"guard,omitempty" yaml:"guard,omitempty" toml:"guard,omitempty"`
	Prefixes         []string              `json:"prefixes,omitempty" yaml:"prefixes,omitempty" toml:"prefixes,omitempty"`
	IgnoreWords      []string              `json:"ignoreWords,omitempty" yaml:"ignoreWords,omitempty" toml:"ignoreWords,omitempty"`
	StoreLineNumbers bool                  `json:"storeLineNumbers,omitempty" yaml:"storeLineNumbers,omitempty" toml:"storeLineNumbers,omitempty"`
	TolerateUnknown  bool                  `json:"tolerateUnknown,omitempty" yaml:"tolerateUnknown,omitempty" toml:"tolerateUnknown,omitempty"`
	FloatingDocs     string                `json:"floatingDocs,omitempty" yaml:"floatingDocs,omitempty" toml:"floatingDocs,omitempty"`
	TypeMap          map[string]string     `json:"typeMap,omitempty" yaml:"typeMap,omitempty" toml:"typeMap,omitempty"`
	ParamTypeMap     map[string]string     `json:"paramTypeMap,omitempty" yaml:"paramTypeMap,omitempty" toml:"paramTypeMap,omitempty"`
	ReturnTypeMap    map[string]string     `json:"returnTypeMap,omitempty" yaml:"returnTypeMap,omitempty" toml:"returnTypeMap,omitempty"`
	Files            map[string]FileConfig `json:"files,omitempty" yaml:"files,omitempty" toml:"files,omitempty"`
}

// FileConfig holds the rules for one target file.
type FileConfig struct {
	Sources       []string             `json:"sources,omitempty" yaml:"sources,omitempty" toml:"sources,omitempty"`
	Includes      []string             `json:"includes,omitempty" yaml:"includes,omitempty" toml:"includes,omitempty"`
	LocalIncludes []string             `json:"localIncludes,omitempty" yaml:"localIncludes,omitempty" toml:"localIncludes,omitempty"`
	Condition     string               `json:"condition,omitempty" yaml:"condition,omitempty" toml:"condition,omitempty"`
	IncludeDefs   []string             `json:"includeDefs,omitempty" yaml:"includeDefs,omitempty" toml:"includeDefs,omitempty"`
	IgnoreEntries []string             `json:"ignoreEntries,omitempty" yaml:"ignoreEntries,omitempty" toml:"ignoreEntries,omitempty"`
	IncludeAt     IncludeAt            `json:"includeAt,omitempty" yaml:"includeAt,omitempty" toml:"includeAt,omitempty"`
	Transform     map[string]EntrySpec `json:"transform,omitempty" yaml:"transform,omitempty" toml:"transform,omitempty"`
	Types         map[string]any       `json:"types,omitempty" yaml:"types,omitempty" toml:"types,omitempty"`
}

type IncludeAt struct {
	Begin []EntrySpec `json:"begin,omitempty" yaml:"begin,omitempty" toml:"begin,omitempty"`
}

// EntrySpec is a partial entry. Empty fields leave the computed entry alone.
type EntrySpec struct {
	Name       string           `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Kind       parser.EntryKind `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Type       string           `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Doc        string           `json:"doc,omitempty" yaml:"doc,omitempty" toml:"doc,omitempty"`
	Parameters []parser.Param   `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	Template   []string         `json:"template,omitempty" yaml:"template,omitempty" toml:"template,omitempty"`
	Value      string           `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Immutable  bool             `json:"immutable,omitempty" yaml:"immutable,omitempty" toml:"immutable,omitempty"`
}

// Apply merges the non-empty fields of s over e.
func (s EntrySpec) Apply(e parser.Entry) parser.Entry {
	if s.Name != "" {
		e.Name = s.Name
	}
	if s.Kind != "" {
		e.Kind = s.Kind
	}
	if s.Type != "" {
		e.Type = s.Type
	}
	if s.Doc != "" {
		e.Doc = s.Doc
	}
	if s.Parameters != nil {
		e.Parameters = append([]parser.Param(nil), s.Parameters...)
	}
	if s.Template != nil {
		e.Template = append([]string(nil), s.Template...)
	}
	if s.Value != "" {
		e.Value = s.Value
	}
	if s.Immutable {
		e.Immutable = true
	}

	return e
}

// Entry builds a fresh entry from s.
func (s EntrySpec) Entry() parser.Entry {
	return s.Apply(parser.Entry{})
}

// TypeRule is the normalized form of a types entry: either the string
// "resource" or a {kind, name} table.
type TypeRule struct {
	Kind string
	Name string
}

// TypeRule returns the rule registered for name.
func (fc FileConfig) TypeRule(name string) (TypeRule, bool) {
	raw, ok := fc.Types[name]
	if !ok {
		return TypeRule{}, false
	}
	rule, _ := normalizeRule(raw)

	return rule, true
}

func normalizeRule(raw any) (TypeRule, bool) {
	switch v := raw.(type) {
	case string:
		return TypeRule{Kind: v}, true
	case map[string]any:
		kind, _ := v["kind"].(string)
		name, _ := v["name"].(string)
		return TypeRule{Kind: kind, Name: name}, kind != ""
	}

	return TypeRule{Kind: fmt.Sprint(raw)}, false
}

// Target returns the target file claiming source, or source itself.
func (c *Config) Target(source string) string {
	for _, name := range c.TargetNames() {
		for _, s := range c.Files[name].Sources {
			if s == source {
				return name
			}
		}
	}

	return source
}

// TargetNames returns the configured targets sorted by name.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Files))
	for name := range c.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// BuildOptions converts the parse-related settings.
func (c *Config) BuildOptions() parser.BuildOptions {
	opts := parser.BuildOptions{
		IgnoreWords:      c.IgnoreWords,
		StoreLineNumbers: c.StoreLineNumbers,
		TolerateUnknown:  c.TolerateUnknown,
	}
	if c.FloatingDocs == "append" {
		opts.FloatingDocs = parser.FloatingDocsAppend
	}

	return opts
}

// Clone returns a deep copy so a run can write computed names back without
// touching the caller's rules.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}

	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *c
		return &cp
	}

	return &out
}

// Load reads a rules file. The format follows the extension: .yaml/.yml,
// .json or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, hdrerrors.Errorf(hdrerrors.InvalidConfig, "unsupported rules format %q", ext).WithFile(path)
	}
	if err != nil {
		return nil, hdrerrors.New(hdrerrors.InvalidConfig, "decoding rules", err).WithFile(path)
	}

	if err := cfg.Validate(); err != nil {
		var he *hdrerrors.Error
		if errors.As(err, &he) {
			he.WithFile(path)
		}
		return nil, err
	}

	return &cfg, nil
}

// Save writes the rules in the format selected by the extension of path.
func (c *Config) Save(path string) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".toml":
		data, err = toml.Marshal(c)
	default:
		return hdrerrors.Errorf(hdrerrors.InvalidConfig, "unsupported rules format %q", ext).WithFile(path)
	}
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Lint reports keys of a rules file that no field accepts.
func Lint(path string) ([]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		var cfg Config
		md, err := burnt.DecodeFile(path, &cfg)
		if err != nil {
			return nil, hdrerrors.New(hdrerrors.InvalidConfig, "decoding rules", err).WithFile(path)
		}

		var issues []string
		for _, key := range md.Undecoded() {
			// types values are free-form tables
			if len(key) > 3 && key[0] == "files" && key[2] == "types" {
				continue
			}
			issues = append(issues, "unknown key "+key.String())
		}
		return issues, nil

	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading rules: %w", err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		var cfg Config
		if err := dec.Decode(&cfg); err != nil {
			return []string{err.Error()}, nil
		}
		return nil, nil

	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading rules: %w", err)
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		var cfg Config
		if err := dec.Decode(&cfg); err != nil {
			return []string{err.Error()}, nil
		}
		return nil, nil

	default:
		return nil, hdrerrors.Errorf(hdrerrors.InvalidConfig, "unsupported rules format %q", ext).WithFile(path)
	}
}

// Validate checks the rules for structural problems. Unknown type rule
// kinds are not errors here; the transform reports them as warnings.
func (c *Config) Validate() error {
	switch c.FloatingDocs {
	case "", "discard", "append":
	default:
		return hdrerrors.Errorf(hdrerrors.InvalidConfig, "floatingDocs must be discard or append, got %q", c.FloatingDocs)
	}

	claimed := make(map[string]string)
	for _, target := range c.TargetNames() {
		if target == "" {
			return hdrerrors.Errorf(hdrerrors.InvalidConfig, "target file with empty name")
		}
		fc := c.Files[target]

		for _, src := range fc.Sources {
			if other, ok := claimed[src]; ok {
				return hdrerrors.Errorf(hdrerrors.InvalidConfig, "source %s claimed by two targets", src).WithNames(other, target)
			}
			claimed[src] = target
		}

		for i, spec := range fc.IncludeAt.Begin {
			if spec.Name == "" || spec.Kind == "" {
				return hdrerrors.Errorf(hdrerrors.InvalidConfig, "%s: includeAt.begin[%d] needs name and kind", target, i)
			}
		}

		names := make([]string, 0, len(fc.Types))
		for name := range fc.Types {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := normalizeRule(fc.Types[name]); !ok {
				return hdrerrors.Errorf(hdrerrors.InvalidConfig, "%s: types.%s must be a string or a {kind, name} table", target, name)
			}
		}
	}

	return nil
}
