// Package search finds the types of a program related to a given type.
package search

import (
	"context"
	"fmt"
	"slices"

	"github.com/conduit-lang/wsmodel/internal/source"
)

// FindRelatedTypes returns the known types, other than t itself, that
// extend or implement t, or that declare a field, a method parameter or a
// setter parameter whose type is t or one of its subtypes. Only the known
// types are inspected, and each of them must resolve: a known type the
// analyzer cannot find fails the search.
func FindRelatedTypes(ctx context.Context, a source.Analyzer, t source.Handle, known []source.Handle) ([]source.Handle, error) {
	s := &searcher{analyzer: a, target: t.Type, subtypes: make(map[string]bool)}
	var related []source.Handle
	seen := make(map[string]bool, len(known))
	for _, candidate := range known {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := candidate.Type
		if name == s.target || seen[name] {
			continue
		}
		seen[name] = true
		ok, err := s.related(ctx, source.TypeHandle(name))
		if err != nil {
			return nil, fmt.Errorf("failed to search types related to %s: %w", s.target, err)
		}
		if ok {
			related = append(related, source.TypeHandle(name))
		}
	}
	return related, nil
}

type searcher struct {
	analyzer source.Analyzer
	target   string
	// subtypes caches whether a type name is the target or a subtype of it
	subtypes map[string]bool
}

func (s *searcher) related(ctx context.Context, h source.Handle) (bool, error) {
	supertypes, err := s.analyzer.Supertypes(ctx, h)
	if err != nil {
		return false, err
	}
	if slices.Contains(supertypes, s.target) {
		return true, nil
	}
	info, err := s.analyzer.Type(ctx, h)
	if err != nil {
		return false, err
	}
	for _, fh := range info.Fields {
		fi, err := s.analyzer.Field(ctx, fh)
		if err != nil {
			return false, err
		}
		if ok, err := s.isTarget(ctx, fi.Type); err != nil || ok {
			return ok, err
		}
	}
	for _, mh := range info.Methods {
		mi, err := s.analyzer.Method(ctx, mh)
		if err != nil {
			return false, err
		}
		for _, p := range mi.Parameters {
			if ok, err := s.isTarget(ctx, p.Type); err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func (s *searcher) isTarget(ctx context.Context, typeName string) (bool, error) {
	if typeName == "" {
		return false, nil
	}
	if ok, cached := s.subtypes[typeName]; cached {
		return ok, nil
	}
	ok, err := s.analyzer.IsSubtype(ctx, typeName, s.target)
	if err != nil {
		return false, err
	}
	s.subtypes[typeName] = ok
	return ok, nil
}
