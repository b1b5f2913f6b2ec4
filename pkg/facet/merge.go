package facet

// Merge wraps the per-facet results in the single-document envelope a server-side $facet stage
// returns. Facets and their documents are passed through as they are.
func Merge(results Results) Envelope {
	if results == nil {
		results = Results{}
	}
	return Envelope{results}
}
