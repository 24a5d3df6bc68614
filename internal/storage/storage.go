package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row the caller named does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness rule,
	// e.g. a second custody record for the same (family, date).
	ErrConflict = errors.New("conflict")
)

type UserStatus string

const (
	UserPending UserStatus = "pending"
	UserActive  UserStatus = "active"
	UserInvited UserStatus = "invited"
)

type User struct {
	ID             string
	FamilyID       string
	FirstName      string
	Email          string
	Status         UserStatus
	SNSEndpointARN *string
	CreatedAt      *time.Time
}

type Family struct {
	ID            string
	SchoolSyncID  *int64
	DaycareSyncID *int64
}

type PatternType string

const (
	PatternWeekly           PatternType = "weekly"
	PatternAlternatingWeeks PatternType = "alternating_weeks"
	PatternAlternatingDays  PatternType = "alternating_days"
	PatternCustom           PatternType = "custom"
)

// WeeklyPattern maps lowercase weekday names ("monday".."sunday") to the
// slot that has custody that day: "parent1", "parent2", or anything else
// for unassigned.
type WeeklyPattern map[string]string

type ScheduleTemplate struct {
	ID                      int64
	FamilyID                string
	Name                    string
	PatternType             PatternType
	WeeklyPattern           WeeklyPattern
	AlternatingWeeksPattern map[string]string
	IsActive                bool
	CreatedAt               time.Time
}

type CustodyRecord struct {
	ID              int64
	FamilyID        string
	Date            time.Time // civil date, UTC midnight
	CustodianID     string
	HandoffDay      bool
	HandoffTime     *string // "HH:MM"
	HandoffLocation *string
	ActorID         string

	// Joined on reads.
	CustodianFirstName string
}

type FamilyEvent struct {
	ID        int64
	FamilyID  string
	Date      time.Time
	Content   string
	EventType string
}

type ProviderKind string

const (
	KindSchool  ProviderKind = "school"
	KindDaycare ProviderKind = "daycare"
)

type Provider struct {
	ID            int64
	FamilyID      string
	Kind          ProviderKind
	Name          string
	Website       *string
	GooglePlaceID *string
}

type CalendarSync struct {
	ID              int64
	ProviderID      int64
	Kind            ProviderKind
	CalendarURL     string
	SyncEnabled     bool
	LastSyncAt      *time.Time
	LastSyncSuccess *bool
	LastSyncError   *string
	EventsCount     int
}

type ProviderEvent struct {
	ID          int64
	ProviderID  int64
	Date        time.Time
	Title       string
	Description *string
	EventType   string // closure, early_dismissal, pd_day, event
	AllDay      bool

	// Joined on reads.
	ProviderName string
}

// SyncResult is what one run of the sync pipeline records on a
// provider's calendar sync row.
type SyncResult struct {
	At          time.Time
	Success     bool
	Error       *string
	EventsCount int
}

type Store interface {
	Close()

	// Families and users
	GetFamily(ctx context.Context, familyID string) (*Family, error)
	ListFamilyUsers(ctx context.Context, familyID string) ([]*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Schedule templates. Create/Update run in one transaction and
	// deactivate the family's other templates when IsActive is set.
	CreateScheduleTemplate(ctx context.Context, t *ScheduleTemplate) error
	UpdateScheduleTemplate(ctx context.Context, t *ScheduleTemplate) error
	GetScheduleTemplate(ctx context.Context, familyID string, id int64) (*ScheduleTemplate, error)
	ListScheduleTemplates(ctx context.Context, familyID string) ([]*ScheduleTemplate, error)
	GetActiveScheduleTemplate(ctx context.Context, familyID string) (*ScheduleTemplate, error)

	// Custody
	GetCustodyByDate(ctx context.Context, familyID string, date time.Time) (*CustodyRecord, error)
	GetLatestCustodyBefore(ctx context.Context, familyID string, date time.Time) (*CustodyRecord, error)
	ListCustodyRange(ctx context.Context, familyID string, start, end time.Time, handoffsOnly bool) ([]*CustodyRecord, error)
	InsertCustody(ctx context.Context, rec *CustodyRecord) error
	BulkInsertCustody(ctx context.Context, recs []*CustodyRecord) (int, error)
	// BulkUpsertCustody inserts records, replacing any that collide on
	// (family, date), all in one transaction. Returns (inserted, overwritten).
	BulkUpsertCustody(ctx context.Context, recs []*CustodyRecord) (int, int, error)
	UpdateCustodyRecords(ctx context.Context, recs []*CustodyRecord) error
	CountCustody(ctx context.Context, familyID string) (int, error)
	ListCustodyMismatches(ctx context.Context, familyID string) ([]*CustodyRecord, error)
	UpdateCustodyCustodians(ctx context.Context, familyID string, fixes map[int64]string) (int, error)

	// Family events
	ListFamilyEvents(ctx context.Context, familyID string, start, end time.Time) ([]*FamilyEvent, error)

	// Providers, calendar syncs and provider events
	GetProvider(ctx context.Context, kind ProviderKind, familyID string, id int64) (*Provider, error)
	GetProviderByID(ctx context.Context, kind ProviderKind, id int64) (*Provider, error)
	ReplaceProviderEvents(ctx context.Context, kind ProviderKind, providerID int64, events []*ProviderEvent) (int, error)
	RecordSyncResult(ctx context.Context, kind ProviderKind, providerID int64, calendarURL string, res SyncResult) (syncID int64, adopted bool, err error)
	GetCalendarSyncByProvider(ctx context.Context, kind ProviderKind, providerID int64) (*CalendarSync, error)
	ListEnabledCalendarSyncs(ctx context.Context, kind ProviderKind) ([]*CalendarSync, error)
	SetFamilySyncAssignment(ctx context.Context, familyID string, kind ProviderKind, syncID int64) error
	ListAssignedProviderEvents(ctx context.Context, kind ProviderKind, familyID string, start, end time.Time, closuresOnly bool) ([]*ProviderEvent, error)

	// Notification targets: the family member other than actor that has a
	// registered device endpoint.
	GetNotificationTarget(ctx context.Context, familyID, actorID string) (*User, error)
}
