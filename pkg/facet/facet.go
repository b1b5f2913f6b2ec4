// Package facet runs the sub-pipelines of a single $facet aggregation stage concurrently and
// merges their results back into the document MongoDB itself would have returned.
//
// A logical query such as
//
//	[{ "$facet": { "ByFuel": [...], "TopCars": [...] } }]
//
// is split into one aggregation per facet. Each runs on its own goroutine against a shared
// Engine, and once all of them have finished the results are assembled as
//
//	[{ "ByFuel": [...], "TopCars": [...] }]
//
// which is the shape a non-parallel run of the same query produces, so callers can switch
// between AggregateInParallel and AggregateSequential freely.
package facet

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Marker is the label of the only top-level stage a parallel facet plan may contain.
const Marker = "$facet"

// LogicalQuery is the pipeline as supplied by the caller. It is never modified.
type LogicalQuery = mongo.Pipeline

// Stage is one top-level pipeline stage: a document whose single key is the stage label.
type Stage = bson.D

// Facet is one named sub-pipeline of a $facet stage. Pipeline is handed to the engine untouched.
type Facet struct {
	Name     string
	Pipeline any
}

// Facets lists the facets of a plan in the order they appeared in the query.
type Facets []Facet

// Names returns the facet names in plan order.
func (f Facets) Names() []string {
	names := make([]string, 0, len(f))
	for _, facet := range f {
		names = append(names, facet.Name)
	}
	return names
}

// Result is the ordered list of documents one facet produced.
type Result []bson.D

// Results maps facet names to their results.
type Results map[string]Result

// Names returns the facet names in lexical order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document renders the results as a single document with facets sorted by name.
func (r Results) Document() bson.D {
	doc := make(bson.D, 0, len(r))
	for _, name := range r.Names() {
		doc = append(doc, bson.E{Key: name, Value: r[name]})
	}
	return doc
}

// Envelope is the outer result of a facet aggregation. A successful run always holds exactly one
// Results value.
type Envelope []Results
