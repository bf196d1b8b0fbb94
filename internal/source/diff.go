package source

import (
	"reflect"
	"sort"
)

// ChangeKind is the kind of a source element change.
type ChangeKind int

const (
	// Added means the element did not exist before.
	Added ChangeKind = iota + 1
	// Changed means the element exists in both versions but differs.
	Changed
	// Removed means the element no longer exists.
	Removed
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "ADDED"
	case Changed:
		return "CHANGED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Change is a type-level change between two program versions.
type Change struct {
	Handle Handle
	Kind   ChangeKind
}

// Diff compares two programs and returns the type-level changes, sorted by
// type name. A nil program is treated as empty.
func Diff(before, after *Program) []Change {
	if before == nil {
		before = MustProgram()
	}
	if after == nil {
		after = MustProgram()
	}
	var changes []Change
	for name, t := range after.types {
		old, ok := before.types[name]
		switch {
		case !ok:
			changes = append(changes, Change{Handle: TypeHandle(name), Kind: Added})
		case !reflect.DeepEqual(normalize(*old), normalize(*t)):
			changes = append(changes, Change{Handle: TypeHandle(name), Kind: Changed})
		}
	}
	for name := range before.types {
		if _, ok := after.types[name]; !ok {
			changes = append(changes, Change{Handle: TypeHandle(name), Kind: Removed})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Handle.Type < changes[j].Handle.Type
	})
	return changes
}

// normalize maps empty collections to nil so that YAML decoding artifacts
// do not show up as changes.
func normalize(t TypeSpec) TypeSpec {
	if len(t.Supertypes) == 0 {
		t.Supertypes = nil
	}
	t.Annotations = normalizeAnnotations(t.Annotations)
	if len(t.Fields) == 0 {
		t.Fields = nil
	} else {
		fields := make([]FieldSpec, len(t.Fields))
		for i, f := range t.Fields {
			f.Annotations = normalizeAnnotations(f.Annotations)
			fields[i] = f
		}
		t.Fields = fields
	}
	if len(t.Methods) == 0 {
		t.Methods = nil
	} else {
		methods := make([]MethodSpec, len(t.Methods))
		for i, m := range t.Methods {
			m.Annotations = normalizeAnnotations(m.Annotations)
			if len(m.Parameters) == 0 {
				m.Parameters = nil
			} else {
				params := make([]ParameterSpec, len(m.Parameters))
				for j, p := range m.Parameters {
					p.Annotations = normalizeAnnotations(p.Annotations)
					params[j] = p
				}
				m.Parameters = params
			}
			methods[i] = m
		}
		t.Methods = methods
	}
	return t
}

func normalizeAnnotations(specs []AnnotationSpec) []AnnotationSpec {
	if len(specs) == 0 {
		return nil
	}
	result := make([]AnnotationSpec, len(specs))
	for i, a := range specs {
		if len(a.Values) == 0 {
			a.Values = nil
		}
		result[i] = a
	}
	return result
}
