package graph

// BuildSPARQLUpdate constructs a SPARQL Update string from a delete graph
// and an insert graph, following the same branching as the original
// implementation's build_sparql_update:
//
//   - both nil/empty             -> ""
//   - inserts only               -> "INSERT DATA { ... }"
//   - deletes only               -> "DELETE DATA { ... }"
//   - both deletes and inserts   -> "DELETE { ... } INSERT { ... } WHERE {}"
//
// Before building the statement, any triple present in both graphs is
// removed from both, so the result never contains a triple simultaneously
// in the delete-set and the insert-set (spec invariant).
func BuildSPARQLUpdate(deletes, inserts *Graph) string {
	if deletes != nil && inserts != nil {
		for _, t := range deletes.Triples() {
			if inserts.Contains(t) {
				deletes.Remove(t)
				inserts.Remove(t)
			}
		}
	}

	hasDeletes := deletes != nil && deletes.Len() > 0
	hasInserts := inserts != nil && inserts.Len() > 0

	switch {
	case hasDeletes && hasInserts:
		return "DELETE { " + deletes.SerializeNTriples() + " } INSERT { " + inserts.SerializeNTriples() + " } WHERE {}"
	case hasDeletes:
		return "DELETE DATA { " + deletes.SerializeNTriples() + " }"
	case hasInserts:
		return "INSERT DATA { " + inserts.SerializeNTriples() + " }"
	default:
		return ""
	}
}
