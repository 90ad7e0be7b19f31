package search

// FieldFacet is a terms aggregation over a keyword field.
type FieldFacet struct {
	Name  string
	Field string
	Size  int
}

// QueryFacet is a named filter aggregation over a query-string predicate.
type QueryFacet struct {
	Name  string
	Query string
}

// FacetSet is the facet configuration a search endpoint exposes. Date-range
// facets are deliberately absent; the builder has no way to express them.
type FacetSet struct {
	Fields  []FieldFacet
	Queries []QueryFacet
}

func (fs FacetSet) fieldByName(name string) (FieldFacet, bool) {
	for _, f := range fs.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldFacet{}, false
}

func (fs FacetSet) queryByName(name string) (QueryFacet, bool) {
	for _, f := range fs.Queries {
		if f.Name == name {
			return f, true
		}
	}
	return QueryFacet{}, false
}

// CourseRunFacets is the facet set of the course-run search surface.
func CourseRunFacets() FacetSet {
	return FacetSet{
		Fields: []FieldFacet{
			{Name: "content_type", Field: "content_type"},
			{Name: "organizations", Field: "organizations_exact"},
			{Name: "subjects", Field: "subjects_exact"},
			{Name: "level_type", Field: "level_type_exact"},
			{Name: "language", Field: "language_exact"},
			{Name: "pacing_type", Field: "pacing_type_exact"},
			{Name: "status", Field: "status_exact"},
			{Name: "seat_types", Field: "seat_types_exact"},
			{Name: "type", Field: "type_exact"},
		},
		Queries: []QueryFacet{
			{Name: "availability_current", Query: "start:[* TO now] AND end:[now TO *]"},
			{Name: "availability_starting_soon", Query: "start:[now TO now+60d]"},
			{Name: "availability_upcoming", Query: "start:[now+60d TO *]"},
			{Name: "availability_archived", Query: "end:[* TO now]"},
		},
	}
}

// AllDocumentFacets is the facet set of the cross-type search surface.
func AllDocumentFacets() FacetSet {
	return FacetSet{
		Fields: []FieldFacet{
			{Name: "content_type", Field: "content_type"},
			{Name: "organizations", Field: "organizations_exact"},
			{Name: "subjects", Field: "subjects_exact"},
			{Name: "status", Field: "status_exact"},
		},
		Queries: []QueryFacet{
			{Name: "availability_current", Query: "start:[* TO now] AND end:[now TO *]"},
			{Name: "availability_archived", Query: "end:[* TO now]"},
		},
	}
}
