package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ProgramSpec is the YAML description of a program.
type ProgramSpec struct {
	Types []TypeSpec `yaml:"types"`
}

// TypeSpec describes a single type.
type TypeSpec struct {
	Name        string           `yaml:"name"`
	Annotation  bool             `yaml:"annotation,omitempty"`
	Supertypes  []string         `yaml:"supertypes,omitempty"`
	Annotations []AnnotationSpec `yaml:"annotations,omitempty"`
	Fields      []FieldSpec      `yaml:"fields,omitempty"`
	Methods     []MethodSpec     `yaml:"methods,omitempty"`
}

// AnnotationSpec describes an annotation. Value is a shorthand for a single
// "value" attribute.
type AnnotationSpec struct {
	Name   string              `yaml:"name"`
	Value  string              `yaml:"value,omitempty"`
	Values map[string][]string `yaml:"values,omitempty"`
}

// FieldSpec describes a field.
type FieldSpec struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"`
	Annotations []AnnotationSpec `yaml:"annotations,omitempty"`
}

// MethodSpec describes a method.
type MethodSpec struct {
	Name        string           `yaml:"name"`
	Returns     string           `yaml:"returns,omitempty"`
	Parameters  []ParameterSpec  `yaml:"parameters,omitempty"`
	Annotations []AnnotationSpec `yaml:"annotations,omitempty"`
}

// ParameterSpec describes a method parameter.
type ParameterSpec struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"`
	Annotations []AnnotationSpec `yaml:"annotations,omitempty"`
}

// Program is an immutable in-memory Analyzer built from a ProgramSpec.
// Every query returns freshly allocated annotations so callers may mutate
// what they receive.
type Program struct {
	types map[string]*TypeSpec
	order []string
}

var _ Analyzer = (*Program)(nil)

// NewProgram validates the given types and builds a Program.
func NewProgram(types ...TypeSpec) (*Program, error) {
	p := &Program{types: make(map[string]*TypeSpec, len(types))}
	for i := range types {
		t := types[i]
		if t.Name == "" {
			return nil, fmt.Errorf("type #%d has no name", i)
		}
		if _, dup := p.types[t.Name]; dup {
			return nil, fmt.Errorf("duplicate type %s", t.Name)
		}
		if err := validateMembers(&t); err != nil {
			return nil, err
		}
		p.types[t.Name] = &t
		p.order = append(p.order, t.Name)
	}
	sort.Strings(p.order)
	return p, nil
}

// MustProgram is like NewProgram but panics on error. Intended for tests.
func MustProgram(types ...TypeSpec) *Program {
	p, err := NewProgram(types...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseProgram decodes a YAML program description.
func ParseProgram(data []byte) (*Program, error) {
	var spec ProgramSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return NewProgram(spec.Types...)
}

// LoadProgram reads and decodes a YAML program description file.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func validateMembers(t *TypeSpec) error {
	seen := make(map[string]bool)
	for _, m := range t.Methods {
		if m.Name == "" {
			return fmt.Errorf("type %s: method without name", t.Name)
		}
		if seen["m:"+m.Name] {
			return fmt.Errorf("type %s: duplicate method %s", t.Name, m.Name)
		}
		seen["m:"+m.Name] = true
	}
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %s: field without name", t.Name)
		}
		if seen["f:"+f.Name] {
			return fmt.Errorf("type %s: duplicate field %s", t.Name, f.Name)
		}
		seen["f:"+f.Name] = true
	}
	return nil
}

// With returns a copy of p where the given types are added or replace
// existing ones with the same name.
func (p *Program) With(types ...TypeSpec) (*Program, error) {
	merged := make(map[string]TypeSpec, len(p.types)+len(types))
	for name, t := range p.types {
		merged[name] = *t
	}
	for _, t := range types {
		merged[t.Name] = t
	}
	return NewProgram(sortedSpecs(merged)...)
}

// Without returns a copy of p without the named types.
func (p *Program) Without(names ...string) *Program {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := make(map[string]TypeSpec, len(p.types))
	for name, t := range p.types {
		if !drop[name] {
			kept[name] = *t
		}
	}
	// kept types were already validated
	result, _ := NewProgram(sortedSpecs(kept)...)
	return result
}

// Spec returns the description of the named type.
func (p *Program) Spec(name string) (TypeSpec, bool) {
	t, ok := p.types[name]
	if !ok {
		return TypeSpec{}, false
	}
	return *t, true
}

// Specs returns every type description sorted by name.
func (p *Program) Specs() []TypeSpec {
	result := make([]TypeSpec, 0, len(p.order))
	for _, name := range p.order {
		result = append(result, *p.types[name])
	}
	return result
}

func sortedSpecs(types map[string]TypeSpec) []TypeSpec {
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	result := make([]TypeSpec, 0, len(names))
	for _, n := range names {
		result = append(result, types[n])
	}
	return result
}

// Type implements Analyzer.
func (p *Program) Type(ctx context.Context, h Handle) (*TypeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := p.types[h.Type]
	if !ok || h.Element != TypeElement {
		return nil, NotFound("type", h)
	}
	supertypes, _ := p.Supertypes(ctx, h)
	info := &TypeInfo{
		Handle:      h,
		Annotation:  t.Annotation,
		Supertypes:  supertypes,
		Annotations: buildAnnotations(t.Annotations),
	}
	for _, m := range t.Methods {
		info.Methods = append(info.Methods, MethodHandle(t.Name, m.Name))
	}
	for _, f := range t.Fields {
		info.Fields = append(info.Fields, FieldHandle(t.Name, f.Name))
	}
	return info, nil
}

// Method implements Analyzer.
func (p *Program) Method(ctx context.Context, h Handle) (*MethodInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t, ok := p.types[h.Type]; ok && h.Element == MethodElement {
		for _, m := range t.Methods {
			if m.Name != h.Member {
				continue
			}
			info := &MethodInfo{
				Handle:      h,
				ReturnType:  m.Returns,
				Annotations: buildAnnotations(m.Annotations),
			}
			if info.ReturnType == "" {
				info.ReturnType = "void"
			}
			for _, param := range m.Parameters {
				info.Parameters = append(info.Parameters, Parameter{
					Name:        param.Name,
					Type:        param.Type,
					Annotations: buildAnnotations(param.Annotations),
				})
			}
			return info, nil
		}
	}
	return nil, NotFound("method", h)
}

// Field implements Analyzer.
func (p *Program) Field(ctx context.Context, h Handle) (*FieldInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t, ok := p.types[h.Type]; ok && h.Element == FieldElement {
		for _, f := range t.Fields {
			if f.Name == h.Member {
				return &FieldInfo{
					Handle:      h,
					Type:        f.Type,
					Annotations: buildAnnotations(f.Annotations),
				}, nil
			}
		}
	}
	return nil, NotFound("field", h)
}

// Supertypes implements Analyzer. Types outside the program have no known
// supertypes.
func (p *Program) Supertypes(ctx context.Context, h Handle) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []string
	visited := map[string]bool{h.Type: true}
	queue := []string{h.Type}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		t, ok := p.types[current]
		if !ok {
			continue
		}
		for _, super := range t.Supertypes {
			if visited[super] {
				continue
			}
			visited[super] = true
			result = append(result, super)
			queue = append(queue, super)
		}
	}
	return result, nil
}

// IsSubtype implements Analyzer.
func (p *Program) IsSubtype(ctx context.Context, sub, super string) (bool, error) {
	if sub == super {
		return true, nil
	}
	supertypes, err := p.Supertypes(ctx, TypeHandle(sub))
	if err != nil {
		return false, err
	}
	for _, s := range supertypes {
		if s == super {
			return true, nil
		}
	}
	return false, nil
}

// Types implements Analyzer.
func (p *Program) Types(ctx context.Context) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]Handle, 0, len(p.order))
	for _, name := range p.order {
		result = append(result, TypeHandle(name))
	}
	return result, nil
}

func buildAnnotations(specs []AnnotationSpec) map[string]*Annotation {
	result := make(map[string]*Annotation, len(specs))
	for _, spec := range specs {
		attributes := make(map[string][]string, len(spec.Values)+1)
		for k, v := range spec.Values {
			attributes[k] = v
		}
		if spec.Value != "" {
			attributes[ValueAttribute] = []string{spec.Value}
		}
		result[spec.Name] = NewAnnotation(spec.Name, attributes)
	}
	return result
}

// Workspace is an Analyzer delegating to the current Program. The program
// can be swapped atomically when the source changes.
type Workspace struct {
	current atomic.Pointer[Program]
}

var _ Analyzer = (*Workspace)(nil)

// NewWorkspace creates a workspace around the given program.
func NewWorkspace(p *Program) *Workspace {
	w := &Workspace{}
	if p == nil {
		p = MustProgram()
	}
	w.current.Store(p)
	return w
}

// Program returns the current program.
func (w *Workspace) Program() *Program {
	return w.current.Load()
}

// Swap installs p and returns the previous program.
func (w *Workspace) Swap(p *Program) *Program {
	return w.current.Swap(p)
}

// Type implements Analyzer.
func (w *Workspace) Type(ctx context.Context, h Handle) (*TypeInfo, error) {
	return w.Program().Type(ctx, h)
}

// Method implements Analyzer.
func (w *Workspace) Method(ctx context.Context, h Handle) (*MethodInfo, error) {
	return w.Program().Method(ctx, h)
}

// Field implements Analyzer.
func (w *Workspace) Field(ctx context.Context, h Handle) (*FieldInfo, error) {
	return w.Program().Field(ctx, h)
}

// Supertypes implements Analyzer.
func (w *Workspace) Supertypes(ctx context.Context, h Handle) ([]string, error) {
	return w.Program().Supertypes(ctx, h)
}

// IsSubtype implements Analyzer.
func (w *Workspace) IsSubtype(ctx context.Context, sub, super string) (bool, error) {
	return w.Program().IsSubtype(ctx, sub, super)
}

// Types implements Analyzer.
func (w *Workspace) Types(ctx context.Context) ([]Handle, error) {
	return w.Program().Types(ctx)
}
