package search

import (
	"time"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
)

// Content types, one index (and alias) per type.
const (
	ContentTypeCourse       = "course"
	ContentTypeCourseRun    = "courserun"
	ContentTypeProgram      = "program"
	ContentTypePerson       = "person"
	ContentTypeOrganization = "organization"
)

// ContentTypes lists every indexed document type in build order.
func ContentTypes() []string {
	return []string{
		ContentTypeCourse,
		ContentTypeCourseRun,
		ContentTypeProgram,
		ContentTypePerson,
		ContentTypeOrganization,
	}
}

// Document is one unit of indexable content.
type Document struct {
	ID   string
	Body any
}

// IndexBody is the settings/mappings body shared by every timestamped index.
// Fields suffixed _exact and the identity fields are keyword so they can back
// terms aggregations and the distinct-counts cardinality.
func IndexBody(maxResultWindow int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
				"max_result_window":  maxResultWindow,
			},
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"exact_fields": map[string]any{
						"match":   "*_exact",
						"mapping": map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": map[string]any{
				"content_type":    map[string]any{"type": "keyword"},
				"aggregation_key": map[string]any{"type": "keyword"},
				"uuid":            map[string]any{"type": "keyword"},
				"key":             map[string]any{"type": "keyword"},
				"status":          map[string]any{"type": "keyword"},
				"start":           map[string]any{"type": "date"},
				"end":             map[string]any{"type": "date"},
			},
		},
	}
}

// CourseDocument is the indexed shape of an official course.
type CourseDocument struct {
	ContentType    string `json:"content_type"`
	AggregationKey string `json:"aggregation_key"`

	UUID             string `json:"uuid"`
	Key              string `json:"key"`
	Title            string `json:"title"`
	ShortDescription string `json:"short_description,omitempty"`
	FullDescription  string `json:"full_description,omitempty"`
	Image            string `json:"image,omitempty"`

	LevelType      string   `json:"level_type,omitempty"`
	LevelTypeExact string   `json:"level_type_exact,omitempty"`
	Organizations  []string `json:"organizations,omitempty"`
	OrgsExact      []string `json:"organizations_exact,omitempty"`
	Subjects       []string `json:"subjects,omitempty"`
	SubjectsExact  []string `json:"subjects_exact,omitempty"`

	Status      string `json:"status,omitempty"`
	StatusExact string `json:"status_exact,omitempty"`
}

// NewCourseDocument builds the course document; the run statuses roll up into
// a single published/unpublished status.
func NewCourseDocument(course *types.Course) Document {
	orgs := orgKeys(course.AuthoringOrganizations)
	subjects := subjectNames(course.Subjects)
	status := catalog.StatusUnpublished
	for _, run := range course.CourseRuns {
		if run.Status == catalog.StatusPublished {
			status = catalog.StatusPublished
			break
		}
	}
	doc := CourseDocument{
		ContentType:      ContentTypeCourse,
		AggregationKey:   "course:" + course.Key,
		UUID:             course.UUID.String(),
		Key:              course.Key,
		Title:            course.Title,
		ShortDescription: course.ShortDescription,
		FullDescription:  course.FullDescription,
		Image:            course.Image,
		LevelType:        course.Level,
		LevelTypeExact:   course.Level,
		Organizations:    orgs,
		OrgsExact:        orgs,
		Subjects:         subjects,
		SubjectsExact:    subjects,
		Status:           status,
		StatusExact:      status,
	}
	return Document{ID: course.UUID.String(), Body: doc}
}

// CourseRunDocument is the indexed shape of an official course run. Runs
// aggregate by their parent course key so distinct counts collapse runs of
// the same course.
type CourseRunDocument struct {
	ContentType    string `json:"content_type"`
	AggregationKey string `json:"aggregation_key"`

	Key        string `json:"key"`
	CourseUUID string `json:"course_uuid"`
	CourseKey  string `json:"course_key"`
	Title      string `json:"title"`

	Status          string `json:"status"`
	StatusExact     string `json:"status_exact"`
	PacingType      string `json:"pacing_type,omitempty"`
	PacingTypeExact string `json:"pacing_type_exact,omitempty"`
	Hidden          bool   `json:"hidden"`

	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	Language      string `json:"language,omitempty"`
	LanguageExact string `json:"language_exact,omitempty"`

	Type      string `json:"type,omitempty"`
	TypeExact string `json:"type_exact,omitempty"`

	SeatTypes      []string `json:"seat_types,omitempty"`
	SeatTypesExact []string `json:"seat_types_exact,omitempty"`

	LevelType      string   `json:"level_type,omitempty"`
	LevelTypeExact string   `json:"level_type_exact,omitempty"`
	Organizations  []string `json:"organizations,omitempty"`
	OrgsExact      []string `json:"organizations_exact,omitempty"`
	Subjects       []string `json:"subjects,omitempty"`
	SubjectsExact  []string `json:"subjects_exact,omitempty"`
}

func NewCourseRunDocument(course *types.Course, run *types.CourseRun) Document {
	orgs := orgKeys(course.AuthoringOrganizations)
	subjects := subjectNames(course.Subjects)
	seatTypes := make([]string, 0, len(run.Seats))
	for _, seat := range run.Seats {
		seatTypes = append(seatTypes, seat.Type)
	}
	runType := ""
	if run.Type != nil {
		runType = run.Type.Slug
	}
	title := run.Title
	if title == "" {
		title = course.Title
	}
	doc := CourseRunDocument{
		ContentType:     ContentTypeCourseRun,
		AggregationKey:  "courserun:" + course.Key,
		Key:             run.Key,
		CourseUUID:      course.UUID.String(),
		CourseKey:       course.Key,
		Title:           title,
		Status:          run.Status,
		StatusExact:     run.Status,
		PacingType:      run.PacingType,
		PacingTypeExact: run.PacingType,
		Hidden:          run.Hidden,
		Start:           run.Start,
		End:             run.End,
		Language:        run.Language,
		LanguageExact:   run.Language,
		Type:            runType,
		TypeExact:       runType,
		SeatTypes:       seatTypes,
		SeatTypesExact:  seatTypes,
		LevelType:       course.Level,
		LevelTypeExact:  course.Level,
		Organizations:   orgs,
		OrgsExact:       orgs,
		Subjects:        subjects,
		SubjectsExact:   subjects,
	}
	return Document{ID: run.Key, Body: doc}
}

type ProgramDocument struct {
	ContentType    string `json:"content_type"`
	AggregationKey string `json:"aggregation_key"`

	UUID     string `json:"uuid"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Type     string `json:"type,omitempty"`

	Status        string   `json:"status"`
	StatusExact   string   `json:"status_exact"`
	Organizations []string `json:"organizations,omitempty"`
	OrgsExact     []string `json:"organizations_exact,omitempty"`
}

func NewProgramDocument(program *types.Program) Document {
	orgs := orgKeys(program.AuthoringOrganizations)
	doc := ProgramDocument{
		ContentType:    ContentTypeProgram,
		AggregationKey: "program:" + program.UUID.String(),
		UUID:           program.UUID.String(),
		Title:          program.Title,
		Subtitle:       program.Subtitle,
		Type:           program.Type,
		Status:         program.Status,
		StatusExact:    program.Status,
		Organizations:  orgs,
		OrgsExact:      orgs,
	}
	return Document{ID: program.UUID.String(), Body: doc}
}

type PersonDocument struct {
	ContentType    string `json:"content_type"`
	AggregationKey string `json:"aggregation_key"`

	UUID     string `json:"uuid"`
	FullName string `json:"full_name"`
	Slug     string `json:"slug,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

func NewPersonDocument(person *types.Person) Document {
	name := person.GivenName
	if person.FamilyName != "" {
		name = name + " " + person.FamilyName
	}
	doc := PersonDocument{
		ContentType:    ContentTypePerson,
		AggregationKey: "person:" + person.UUID.String(),
		UUID:           person.UUID.String(),
		FullName:       name,
		Slug:           person.Slug,
		Bio:            person.Bio,
	}
	return Document{ID: person.UUID.String(), Body: doc}
}

type OrganizationDocument struct {
	ContentType    string `json:"content_type"`
	AggregationKey string `json:"aggregation_key"`

	UUID        string `json:"uuid"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func NewOrganizationDocument(org *types.Organization) Document {
	doc := OrganizationDocument{
		ContentType:    ContentTypeOrganization,
		AggregationKey: "organization:" + org.Key,
		UUID:           org.UUID.String(),
		Key:            org.Key,
		Name:           org.Name,
		Description:    org.Description,
	}
	return Document{ID: org.UUID.String(), Body: doc}
}

func orgKeys(orgs []types.Organization) []string {
	out := make([]string, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, org.Key)
	}
	return out
}

func subjectNames(subjects []types.Subject) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, s.Name)
	}
	return out
}
