package services

import (
	"github.com/google/uuid"

	types "github.com/coursegraph/catalog-backend/internal/domain"
)

// The copy plan enumerates, per entity, which rows a draft materialization
// clones and which foreign keys must be re-bound to the cloned peers. Cloning
// runs in two passes: pass one allocates every clone with a fresh primary key
// while keeping source-side foreign keys, pass two rewrites those keys
// through the id map. This avoids ordering constraints between sibling
// tables (course.canonical_course_run_id and course_run.course_id form a
// cycle).
type courseGraphCopy struct {
	Course       *types.Course
	Runs         []*types.CourseRun
	Seats        []*types.Seat
	Entitlements []*types.CourseEntitlement
	Slugs        []*types.CourseURLSlug
	Redirects    []*types.CourseURLRedirect

	// StaffByRun and the course-level link sets carry the many-to-many
	// rebinding work for pass three (link replacement after insert).
	StaffByRun map[uuid.UUID][]types.Person
	Orgs       []types.Organization
	Subjects   []types.Subject
	Topics     []types.Topic

	// IDMap maps source row IDs to clone row IDs across every copied table.
	IDMap map[uuid.UUID]uuid.UUID
	// SourceByClone maps clone IDs back to the rows they were copied from,
	// letting the caller set draft_version_id pointers on the source side.
	SourceRunByCloneID         map[uuid.UUID]*types.CourseRun
	SourceSeatByCloneID        map[uuid.UUID]*types.Seat
	SourceEntitlementByCloneID map[uuid.UUID]*types.CourseEntitlement
}

// planDraftCopy builds the in-memory draft clone of an official course graph.
// Only the active slug-history row crosses over; retired slugs stay official-
// side history. Nothing is persisted here.
func planDraftCopy(official *types.Course) *courseGraphCopy {
	cp := &courseGraphCopy{
		IDMap:                      map[uuid.UUID]uuid.UUID{},
		StaffByRun:                 map[uuid.UUID][]types.Person{},
		SourceRunByCloneID:         map[uuid.UUID]*types.CourseRun{},
		SourceSeatByCloneID:        map[uuid.UUID]*types.Seat{},
		SourceEntitlementByCloneID: map[uuid.UUID]*types.CourseEntitlement{},
	}

	// Pass one: allocate clones with fresh IDs, source FKs untouched.
	course := *official
	course.ID = uuid.New()
	course.Draft = true
	course.DraftVersionID = nil
	course.Type = nil
	course.CourseRuns = nil
	course.Entitlements = nil
	course.URLSlugHistory = nil
	course.URLRedirects = nil
	course.AuthoringOrganizations = nil
	course.Subjects = nil
	course.Topics = nil
	cp.IDMap[official.ID] = course.ID
	cp.Course = &course

	for i := range official.CourseRuns {
		src := official.CourseRuns[i]
		clone := src
		clone.ID = uuid.New()
		clone.Draft = true
		clone.DraftVersionID = nil
		clone.Type = nil
		clone.Seats = nil
		clone.Staff = nil
		cp.IDMap[src.ID] = clone.ID
		runClone := clone
		cp.Runs = append(cp.Runs, &runClone)
		cp.SourceRunByCloneID[runClone.ID] = &official.CourseRuns[i]
		cp.StaffByRun[runClone.ID] = src.Staff

		for j := range src.Seats {
			seatSrc := src.Seats[j]
			seatClone := seatSrc
			seatClone.ID = uuid.New()
			seatClone.Draft = true
			seatClone.DraftVersionID = nil
			cp.IDMap[seatSrc.ID] = seatClone.ID
			sc := seatClone
			cp.Seats = append(cp.Seats, &sc)
			cp.SourceSeatByCloneID[sc.ID] = &official.CourseRuns[i].Seats[j]
		}
	}

	for i := range official.Entitlements {
		src := official.Entitlements[i]
		clone := src
		clone.ID = uuid.New()
		clone.Draft = true
		clone.DraftVersionID = nil
		cp.IDMap[src.ID] = clone.ID
		ec := clone
		cp.Entitlements = append(cp.Entitlements, &ec)
		cp.SourceEntitlementByCloneID[ec.ID] = &official.Entitlements[i]
	}

	if active := official.ActiveURLSlug(); active != nil {
		clone := *active
		clone.ID = uuid.New()
		cp.IDMap[active.ID] = clone.ID
		cp.Slugs = append(cp.Slugs, &clone)
	}

	for i := range official.URLRedirects {
		src := official.URLRedirects[i]
		clone := src
		clone.ID = uuid.New()
		cp.IDMap[src.ID] = clone.ID
		rc := clone
		cp.Redirects = append(cp.Redirects, &rc)
	}

	cp.Orgs = official.AuthoringOrganizations
	cp.Subjects = official.Subjects
	cp.Topics = official.Topics

	// Pass two: rewrite FKs through the id map.
	cp.rebind()
	return cp
}

func (cp *courseGraphCopy) rebind() {
	remap := func(id uuid.UUID) uuid.UUID {
		if mapped, ok := cp.IDMap[id]; ok {
			return mapped
		}
		return id
	}
	if cp.Course.CanonicalCourseRunID != nil {
		mapped := remap(*cp.Course.CanonicalCourseRunID)
		cp.Course.CanonicalCourseRunID = &mapped
	}
	for _, run := range cp.Runs {
		run.CourseID = remap(run.CourseID)
	}
	for _, seat := range cp.Seats {
		seat.CourseRunID = remap(seat.CourseRunID)
	}
	for _, ent := range cp.Entitlements {
		ent.CourseID = remap(ent.CourseID)
	}
	for _, s := range cp.Slugs {
		s.CourseID = remap(s.CourseID)
	}
	for _, r := range cp.Redirects {
		r.CourseID = remap(r.CourseID)
	}
}
