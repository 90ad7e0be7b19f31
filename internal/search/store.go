package search

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// AliasPrefix returns the configured alias prefix, default "catalog_".
func AliasPrefix() string {
	prefix := strings.TrimSpace(os.Getenv("ELASTICSEARCH_INDEX_PREFIX"))
	if prefix == "" {
		prefix = "catalog_"
	}
	return prefix
}

// Alias is the read alias of a content type's index.
func Alias(contentType string) string {
	return AliasPrefix() + contentType
}

// StoreSource feeds the indexer from the relational store. Only official rows
// are indexed; drafts never reach search.
type StoreSource struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoreSource(db *gorm.DB, log *logger.Logger) *StoreSource {
	return &StoreSource{db: db, log: log.With("service", "SearchStoreSource")}
}

func (s *StoreSource) officialCourses(ctx context.Context, uuids []uuid.UUID) ([]*types.Course, error) {
	q := s.db.WithContext(ctx).
		Where("draft = ?", false).
		Preload("AuthoringOrganizations").
		Preload("Subjects").
		Preload("CourseRuns").
		Preload("CourseRuns.Seats").
		Preload("CourseRuns.Type")
	if len(uuids) > 0 {
		q = q.Where("uuid IN ?", uuids)
	}
	var courses []*types.Course
	if err := q.Order("key").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("load official courses: %w", err)
	}
	return courses, nil
}

// Documents returns every indexable document of a content type.
func (s *StoreSource) Documents(ctx context.Context, contentType string) ([]Document, error) {
	switch contentType {
	case ContentTypeCourse:
		courses, err := s.officialCourses(ctx, nil)
		if err != nil {
			return nil, err
		}
		docs := make([]Document, 0, len(courses))
		for _, course := range courses {
			docs = append(docs, NewCourseDocument(course))
		}
		return docs, nil

	case ContentTypeCourseRun:
		courses, err := s.officialCourses(ctx, nil)
		if err != nil {
			return nil, err
		}
		var docs []Document
		for _, course := range courses {
			for i := range course.CourseRuns {
				docs = append(docs, NewCourseRunDocument(course, &course.CourseRuns[i]))
			}
		}
		return docs, nil

	case ContentTypeProgram:
		var programs []*types.Program
		err := s.db.WithContext(ctx).
			Where("status <> ?", catalog.ProgramStatusDeleted).
			Preload("AuthoringOrganizations").
			Order("title").
			Find(&programs).Error
		if err != nil {
			return nil, fmt.Errorf("load programs: %w", err)
		}
		docs := make([]Document, 0, len(programs))
		for _, program := range programs {
			docs = append(docs, NewProgramDocument(program))
		}
		return docs, nil

	case ContentTypePerson:
		var people []*types.Person
		if err := s.db.WithContext(ctx).Order("given_name").Find(&people).Error; err != nil {
			return nil, fmt.Errorf("load people: %w", err)
		}
		docs := make([]Document, 0, len(people))
		for _, person := range people {
			docs = append(docs, NewPersonDocument(person))
		}
		return docs, nil

	case ContentTypeOrganization:
		var orgs []*types.Organization
		if err := s.db.WithContext(ctx).Order("key").Find(&orgs).Error; err != nil {
			return nil, fmt.Errorf("load organizations: %w", err)
		}
		docs := make([]Document, 0, len(orgs))
		for _, org := range orgs {
			docs = append(docs, NewOrganizationDocument(org))
		}
		return docs, nil
	}
	return nil, fmt.Errorf("unknown content type %q", contentType)
}

// Indexer performs targeted reindexing of a single course and its runs,
// writing through the read aliases. Used by the publication reindex job.
type Indexer struct {
	client *Client
	source *StoreSource
	log    *logger.Logger
}

func NewIndexer(client *Client, source *StoreSource, log *logger.Logger) *Indexer {
	return &Indexer{client: client, source: source, log: log.With("service", "SearchIndexer")}
}

// ReindexCourse replaces the course document and its run documents in place.
// A course with no official row (never published) is removed from the index.
func (ix *Indexer) ReindexCourse(ctx context.Context, courseUUID uuid.UUID) error {
	courses, err := ix.source.officialCourses(ctx, []uuid.UUID{courseUUID})
	if err != nil {
		return err
	}

	courseAlias := Alias(ContentTypeCourse)
	runAlias := Alias(ContentTypeCourseRun)

	if err := ix.client.DeleteByQuery(ctx, courseAlias, map[string]any{
		"term": map[string]any{"uuid": courseUUID.String()},
	}); err != nil {
		return err
	}
	if err := ix.client.DeleteByQuery(ctx, runAlias, map[string]any{
		"term": map[string]any{"course_uuid": courseUUID.String()},
	}); err != nil {
		return err
	}

	if len(courses) == 0 {
		ix.log.Info("course absent from official store, removed from index", "course_uuid", courseUUID)
		return nil
	}

	course := courses[0]
	if err := ix.client.BulkIndex(ctx, courseAlias, []Document{NewCourseDocument(course)}); err != nil {
		return err
	}
	runDocs := make([]Document, 0, len(course.CourseRuns))
	for i := range course.CourseRuns {
		runDocs = append(runDocs, NewCourseRunDocument(course, &course.CourseRuns[i]))
	}
	if err := ix.client.BulkIndex(ctx, runAlias, runDocs); err != nil {
		return err
	}
	if err := ix.client.Refresh(ctx, courseAlias); err != nil {
		return err
	}
	return ix.client.Refresh(ctx, runAlias)
}
