package facet

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
)

// Validate checks that query is a single $facet stage and returns its facets in the order they
// were declared. The sub-pipelines are not inspected.
//
// Duplicate, empty or non UTF-8 facet names are rejected: a $facet payload built as an ordered document can
// repeat a key, and the merged result could only keep one of them. Names that are not UTF-8 cannot
// be encoded as BSON keys.
func Validate(query LogicalQuery) (Facets, error) {
	if len(query) != 1 {
		return nil, stageCountError(len(query))
	}

	stage := query[0]
	if len(stage) == 0 {
		return nil, labelError("")
	}
	if stage[0].Key != Marker {
		return nil, labelError(stage[0].Key)
	}
	if len(stage) > 1 {
		return nil, &StructuralError{
			StageCount: 1,
			Label:      Marker,
			reason:     fmt.Sprintf("the %q stage must have exactly one field; found %d", Marker, len(stage)),
		}
	}

	facets, err := facetsFromPayload(stage[0].Value)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(facets))
	for _, f := range facets {
		if f.Name == "" {
			return nil, &StructuralError{StageCount: 1, Label: Marker, reason: "facet names must not be empty"}
		}
		if !utf8.ValidString(f.Name) {
			return nil, &StructuralError{
				StageCount: 1,
				Label:      Marker,
				Facet:      f.Name,
				reason:     fmt.Sprintf("facet name %q is not valid UTF-8", f.Name),
			}
		}
		if _, ok := seen[f.Name]; ok {
			return nil, &StructuralError{
				StageCount: 1,
				Label:      Marker,
				Facet:      f.Name,
				reason:     fmt.Sprintf("duplicate facet name %q", f.Name),
			}
		}
		seen[f.Name] = struct{}{}
	}

	return facets, nil
}

func facetsFromPayload(payload any) (Facets, error) {
	switch p := payload.(type) {
	case bson.D:
		facets := make(Facets, 0, len(p))
		for _, e := range p {
			facets = append(facets, Facet{Name: e.Key, Pipeline: e.Value})
		}
		return facets, nil
	case bson.M:
		return facetsFromMap(p), nil
	case map[string]any:
		return facetsFromMap(p), nil
	default:
		return nil, &StructuralError{
			StageCount: 1,
			Label:      Marker,
			reason:     fmt.Sprintf("the %q stage value must be a document of facet sub-pipelines; got %T", Marker, payload),
		}
	}
}

// Go maps carry no order, so facets declared through one are sorted by name.
func facetsFromMap(m map[string]any) Facets {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	facets := make(Facets, 0, len(m))
	for _, name := range names {
		facets = append(facets, Facet{Name: name, Pipeline: m[name]})
	}
	return facets
}
