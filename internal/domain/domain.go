package domain

import (
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	"github.com/coursegraph/catalog-backend/internal/domain/jobs"
)

type Partner = catalog.Partner
type Organization = catalog.Organization
type Person = catalog.Person
type Subject = catalog.Subject
type Topic = catalog.Topic
type Source = catalog.Source

type Mode = catalog.Mode
type CourseType = catalog.CourseType
type CourseRunType = catalog.CourseRunType

type Course = catalog.Course
type CourseRun = catalog.CourseRun
type Seat = catalog.Seat
type SeatNaturalKey = catalog.SeatNaturalKey
type CourseEntitlement = catalog.CourseEntitlement
type CourseURLSlug = catalog.CourseURLSlug
type CourseURLRedirect = catalog.CourseURLRedirect
type Program = catalog.Program

type JobRun = jobs.JobRun
