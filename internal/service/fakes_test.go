package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
)

// --- Fixtures ---

var fixedNow = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return func() time.Time { return fixedNow }
}

func testScheduleConfig() ScheduleConfig {
	return ScheduleConfig{Location: time.UTC, Now: fixedClock(), MaintenancePolicy: "reject"}
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := scheduling.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func strPtr(v string) *string {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func eveningPattern() scheduling.Pattern {
	return scheduling.Pattern{
		{Day: scheduling.Day(time.Monday), Start: scheduling.MustTime("18:00"), End: scheduling.MustTime("20:00")},
		{Day: scheduling.Day(time.Wednesday), Start: scheduling.MustTime("18:00"), End: scheduling.MustTime("20:00")},
	}
}

// sampleClass runs Monday and Wednesday evenings in room-r from 2024-01-01 for 12 sessions.
func sampleClass(t *testing.T) *models.ClassDefinition {
	return &models.ClassDefinition{
		ID:              "class-1",
		Name:            "Evening Spin",
		TrainerID:       "trainer-1",
		RoomID:          strPtr("room-r"),
		Capacity:        2,
		Recurrence:      eveningPattern(),
		StartDate:       mustDate(t, "2024-01-01"),
		EndDate:         mustDate(t, "2024-03-31"),
		TotalSessions:   12,
		CurrentSessions: 2,
	}
}

func newTxProviderMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// --- Locking and notifications ---

type lockerStub struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *lockerStub) Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, keys...)
	return l.err
}

type notifierRecorder struct {
	mu    sync.Mutex
	items []models.Notification
}

func (n *notifierRecorder) Notify(ctx context.Context, notification models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notification)
}

func (n *notifierRecorder) categories() []models.NotificationCategory {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationCategory, 0, len(n.items))
	for _, item := range n.items {
		out = append(out, item.Category)
	}
	return out
}

// --- Classes ---

type classStoreFake struct {
	mu      sync.Mutex
	classes map[string]*models.ClassDefinition
}

func newClassStore(classes ...*models.ClassDefinition) *classStoreFake {
	store := &classStoreFake{classes: map[string]*models.ClassDefinition{}}
	for _, c := range classes {
		store.classes[c.ID] = c
	}
	return store
}

func (f *classStoreFake) Create(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if class.ID == "" {
		class.ID = fmt.Sprintf("class-%d", len(f.classes)+1)
	}
	copied := *class
	f.classes[class.ID] = &copied
	return nil
}

func (f *classStoreFake) FindByID(ctx context.Context, id string) (*models.ClassDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	class, ok := f.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *class
	return &copied, nil
}

func (f *classStoreFake) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDefinition, error) {
	return f.FindByID(ctx, id)
}

func (f *classStoreFake) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDefinition, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassDefinition
	for _, class := range f.classes {
		if filter.TrainerID != "" && class.TrainerID != filter.TrainerID {
			continue
		}
		out = append(out, *class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *classStoreFake) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, class *models.ClassDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.classes[class.ID]
	if !ok || existing.Cancelled() {
		return sql.ErrNoRows
	}
	copied := *class
	f.classes[class.ID] = &copied
	return nil
}

func (f *classStoreFake) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	class, ok := f.classes[id]
	if !ok || class.Cancelled() {
		return sql.ErrNoRows
	}
	class.CancelledAt = &at
	class.CancelReason = reason
	return nil
}

func (f *classStoreFake) UpdateProgress(ctx context.Context, exec sqlx.ExtContext, id string, current int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	class, ok := f.classes[id]
	if !ok || class.Cancelled() {
		return sql.ErrNoRows
	}
	class.CurrentSessions = current
	return nil
}

func (f *classStoreFake) ListActiveInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ClassDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassDefinition
	for _, class := range f.classes {
		if class.Cancelled() || deref(class.RoomID) != roomID {
			continue
		}
		if class.StartDate.After(to) || class.EndDate.Before(from) {
			continue
		}
		out = append(out, *class)
	}
	return out, nil
}

// --- Rooms and equipment ---

type roomStoreFake struct {
	mu       sync.Mutex
	rooms    map[string]*models.Room
	statuses map[string]models.RoomStatus
}

func newRoomStore(rooms ...models.Room) *roomStoreFake {
	store := &roomStoreFake{rooms: map[string]*models.Room{}, statuses: map[string]models.RoomStatus{}}
	for i := range rooms {
		room := rooms[i]
		store.rooms[room.ID] = &room
	}
	return store
}

func (f *roomStoreFake) FindByID(ctx context.Context, id string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *room
	return &copied, nil
}

func (f *roomStoreFake) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return sql.ErrNoRows
	}
	room.Status = status
	f.statuses[id] = status
	return nil
}

type equipmentStoreFake struct {
	mu    sync.Mutex
	items map[string]*models.Equipment
}

func (f *equipmentStoreFake) FindByID(ctx context.Context, id string) (*models.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (f *equipmentStoreFake) UpdateCondition(ctx context.Context, exec sqlx.ExtContext, id string, condition models.EquipmentCondition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Condition = condition
	return nil
}

// --- Schedule change requests ---

type changeStoreFake struct {
	mu       sync.Mutex
	requests map[string]*models.ScheduleChangeRequest
	seq      int
}

func newChangeStore(requests ...*models.ScheduleChangeRequest) *changeStoreFake {
	store := &changeStoreFake{requests: map[string]*models.ScheduleChangeRequest{}}
	for _, r := range requests {
		store.requests[r.ID] = r
	}
	return store
}

func (f *changeStoreFake) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ScheduleChangeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.Status == models.ScheduleChangePending && existing.TrainerID == req.TrainerID &&
			existing.ClassID == req.ClassID && existing.OriginalDate.Equal(req.OriginalDate) {
			return repository.ErrDuplicate
		}
	}
	f.seq++
	req.ID = fmt.Sprintf("req-new-%d", f.seq)
	req.Status = models.ScheduleChangePending
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *changeStoreFake) FindByID(ctx context.Context, id string) (*models.ScheduleChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (f *changeStoreFake) HasPending(ctx context.Context, exec sqlx.ExtContext, trainerID, classID string, originalDate time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.Status == models.ScheduleChangePending && req.TrainerID == trainerID &&
			req.ClassID == classID && req.OriginalDate.Equal(originalDate) {
			return true, nil
		}
	}
	return false, nil
}

func (f *changeStoreFake) List(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduleChangeRequest
	for _, req := range f.requests {
		if filter.TrainerID != "" && req.TrainerID != filter.TrainerID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (f *changeStoreFake) Review(ctx context.Context, exec sqlx.ExtContext, params repository.ReviewParams) (*models.ScheduleChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[params.ID]
	if !ok || req.Status != models.ScheduleChangePending {
		return nil, sql.ErrNoRows
	}
	req.Status = params.Status
	req.ReviewedBy = &params.ReviewedBy
	reviewedAt := params.ReviewedAt
	req.ReviewedAt = &reviewedAt
	req.AdminResponse = params.AdminResponse
	copied := *req
	return &copied, nil
}

func (f *changeStoreFake) AttachMakeup(ctx context.Context, exec sqlx.ExtContext, id string, makeup models.MakeupOccurrence) (*models.ScheduleChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != models.ScheduleChangeApproved || req.MakeupDate != nil {
		return nil, sql.ErrNoRows
	}
	date := makeup.Date
	req.MakeupDate = &date
	req.MakeupStart = strPtr(makeup.Start.String())
	req.MakeupEnd = strPtr(makeup.End.String())
	req.MakeupRoomID = makeup.RoomID
	req.MakeupLocation = makeup.Location
	copied := *req
	return &copied, nil
}

func (f *changeStoreFake) ListEffective(ctx context.Context, exec sqlx.ExtContext, classIDs []string, from, to *time.Time) ([]models.ScheduleChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range classIDs {
		wanted[id] = true
	}
	var out []models.ScheduleChangeRequest
	for _, req := range f.requests {
		if !wanted[req.ClassID] || req.Status != models.ScheduleChangeApproved || req.MakeupDate == nil {
			continue
		}
		if from != nil && req.OriginalDate.Before(*from) && req.MakeupDate.Before(*from) {
			continue
		}
		if to != nil && req.OriginalDate.After(*to) && req.MakeupDate.After(*to) {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (f *changeStoreFake) ListMakeupsInRoom(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.ScheduleChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduleChangeRequest
	for _, req := range f.requests {
		if req.Status != models.ScheduleChangeApproved || req.MakeupDate == nil || deref(req.MakeupRoomID) != roomID {
			continue
		}
		if req.MakeupDate.Before(from) || req.MakeupDate.After(to) {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

// --- Maintenance windows ---

type windowStoreFake struct {
	mu      sync.Mutex
	windows map[string]*models.MaintenanceWindow
	seq     int
}

func newWindowStore(windows ...*models.MaintenanceWindow) *windowStoreFake {
	store := &windowStoreFake{windows: map[string]*models.MaintenanceWindow{}}
	for _, w := range windows {
		store.windows[w.ID] = w
	}
	return store
}

func (f *windowStoreFake) Create(ctx context.Context, exec sqlx.ExtContext, window *models.MaintenanceWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	window.ID = fmt.Sprintf("mw-new-%d", f.seq)
	window.Status = models.MaintenanceScheduled
	if window.Priority == "" {
		window.Priority = models.PriorityMedium
	}
	if len(window.ConflictSnapshot) == 0 {
		window.ConflictSnapshot = []byte("[]")
	}
	copied := *window
	f.windows[window.ID] = &copied
	return nil
}

func (f *windowStoreFake) FindByID(ctx context.Context, id string) (*models.MaintenanceWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *w
	return &copied, nil
}

func (f *windowStoreFake) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceWindow, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MaintenanceWindow
	for _, w := range f.windows {
		if filter.RoomID != "" && w.RoomID != filter.RoomID {
			continue
		}
		out = append(out, *w)
	}
	return out, len(out), nil
}

func (f *windowStoreFake) Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) (*models.MaintenanceWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[params.ID]
	if !ok || w.Status != params.From {
		return nil, sql.ErrNoRows
	}
	w.Status = params.To
	at := params.At
	switch params.To {
	case models.MaintenanceInProgress:
		w.StartedAt = &at
	case models.MaintenanceCompleted:
		w.CompletedAt = &at
		w.ActualCost = params.ActualCost
		w.WorkPerformed = params.WorkPerformed
	default:
		w.StatusNote = params.Note
	}
	copied := *w
	return &copied, nil
}

func (f *windowStoreFake) ListOccupying(ctx context.Context, exec sqlx.ExtContext, roomID string, from, to time.Time) ([]models.MaintenanceWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MaintenanceWindow
	for _, w := range f.windows {
		if w.RoomID != roomID || !w.Status.Occupying() {
			continue
		}
		if !scheduling.Overlaps(w.ScheduledStart, w.End(), from, to) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

// --- Enrollments ---

type enrollmentStoreFake struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
	seq         int
}

func newEnrollmentStore(enrollments ...*models.Enrollment) *enrollmentStoreFake {
	store := &enrollmentStoreFake{enrollments: map[string]*models.Enrollment{}}
	for _, e := range enrollments {
		store.enrollments[e.ID] = e
	}
	return store
}

func paidEnrollment(id, classID, memberID string) *models.Enrollment {
	return &models.Enrollment{
		ID:               id,
		ClassID:          classID,
		MemberID:         memberID,
		PaymentConfirmed: true,
		Status:           models.EnrollmentStatusActive,
		JoinedAt:         fixedNow.AddDate(0, 0, -14),
	}
}

func (f *enrollmentStoreFake) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *enrollmentStoreFake) FindByMember(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.MemberID == memberID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *enrollmentStoreFake) Upsert(ctx context.Context, exec sqlx.ExtContext, classID, memberID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.MemberID == memberID {
			if e.Status == models.EnrollmentStatusActive {
				return nil, sql.ErrNoRows
			}
			e.Status = models.EnrollmentStatusActive
			e.PaymentConfirmed = false
			e.LeftAt = nil
			copied := *e
			return &copied, nil
		}
	}
	f.seq++
	e := &models.Enrollment{
		ID:       fmt.Sprintf("enr-new-%d", f.seq),
		ClassID:  classID,
		MemberID: memberID,
		Status:   models.EnrollmentStatusActive,
		JoinedAt: fixedNow,
	}
	f.enrollments[e.ID] = e
	copied := *e
	return &copied, nil
}

func (f *enrollmentStoreFake) CountSeats(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seats := 0
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.Counted() {
			seats++
		}
	}
	return seats, nil
}

func (f *enrollmentStoreFake) ConfirmPayment(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive || e.PaymentConfirmed {
		return nil, sql.ErrNoRows
	}
	e.PaymentConfirmed = true
	copied := *e
	return &copied, nil
}

func (f *enrollmentStoreFake) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return nil, sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusCancelled
	e.LeftAt = &at
	copied := *e
	return &copied, nil
}

func (f *enrollmentStoreFake) ListRoster(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.RosterMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RosterMember
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.Counted() {
			out = append(out, models.RosterMember{EnrollmentID: e.ID, MemberID: e.MemberID, JoinedAt: e.JoinedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (f *enrollmentStoreFake) ListClassIDsByMember(ctx context.Context, memberID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.enrollments {
		if e.MemberID == memberID && e.Counted() {
			out = append(out, e.ClassID)
		}
	}
	return out, nil
}

func (f *enrollmentStoreFake) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if filter.MemberID != "" && e.MemberID != filter.MemberID {
			continue
		}
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

// --- Attendance ---

type attendanceStoreFake struct {
	mu      sync.Mutex
	records []*models.AttendanceRecord
	seq     int
}

func (f *attendanceStoreFake) find(classID, memberID string, n int) *models.AttendanceRecord {
	for _, rec := range f.records {
		if rec.ClassID == classID && rec.MemberID == memberID && rec.SessionNumber == n {
			return rec
		}
	}
	return nil
}

func (f *attendanceStoreFake) CountSession(ctx context.Context, exec sqlx.ExtContext, classID string, n int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.records {
		if rec.ClassID == classID && rec.SessionNumber == n {
			count++
		}
	}
	return count, nil
}

func (f *attendanceStoreFake) InsertUnmarked(ctx context.Context, exec sqlx.ExtContext, records []models.AttendanceRecord) ([]models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inserted []models.AttendanceRecord
	for _, rec := range records {
		if f.find(rec.ClassID, rec.MemberID, rec.SessionNumber) != nil {
			continue
		}
		f.seq++
		rec.ID = fmt.Sprintf("att-%d", f.seq)
		rec.CreatedAt = fixedNow
		rec.UpdatedAt = fixedNow
		stored := rec
		f.records = append(f.records, &stored)
		inserted = append(inserted, rec)
	}
	return inserted, nil
}

func (f *attendanceStoreFake) UpsertPresence(ctx context.Context, exec sqlx.ExtContext, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.find(rec.ClassID, rec.MemberID, rec.SessionNumber)
	if existing == nil {
		f.seq++
		copied := *rec
		copied.ID = fmt.Sprintf("att-%d", f.seq)
		f.records = append(f.records, &copied)
		result := copied
		return &result, nil
	}
	existing.Present = rec.Present
	if rec.Note != nil {
		existing.Note = rec.Note
	}
	switch {
	case !rec.Present:
		existing.CheckedInAt = nil
	case existing.CheckedInAt == nil:
		existing.CheckedInAt = rec.CheckedInAt
	}
	result := *existing
	return &result, nil
}

func (f *attendanceStoreFake) FindOne(ctx context.Context, exec sqlx.ExtContext, classID, memberID string, n int) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.find(classID, memberID, n)
	if rec == nil {
		return nil, sql.ErrNoRows
	}
	copied := *rec
	return &copied, nil
}

func (f *attendanceStoreFake) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttendanceRecord
	for _, rec := range f.records {
		if rec.ClassID != filter.ClassID {
			continue
		}
		if filter.MemberID != "" && rec.MemberID != filter.MemberID {
			continue
		}
		if filter.SessionNumber > 0 && rec.SessionNumber != filter.SessionNumber {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionNumber != out[j].SessionNumber {
			return out[i].SessionNumber < out[j].SessionNumber
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (f *attendanceStoreFake) ListOpenedSessions(ctx context.Context, exec sqlx.ExtContext, classID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int]bool{}
	var out []int
	for _, rec := range f.records {
		if rec.ClassID == classID && !seen[rec.SessionNumber] {
			seen[rec.SessionNumber] = true
			out = append(out, rec.SessionNumber)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (f *attendanceStoreFake) RescheduleUnmarked(ctx context.Context, exec sqlx.ExtContext, classID string, n int, date time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for _, rec := range f.records {
		if rec.ClassID == classID && rec.SessionNumber == n && !rec.Marked() && !rec.SessionDate.Equal(date) {
			rec.SessionDate = date
			moved++
		}
	}
	return moved, nil
}

func (f *attendanceStoreFake) DeleteUnmarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	kept := f.records[:0]
	for _, rec := range f.records {
		if rec.ClassID == classID && rec.SessionNumber > limit && !rec.Marked() {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	f.records = kept
	return deleted, nil
}

func (f *attendanceStoreFake) CountMarkedAbove(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.records {
		if rec.ClassID == classID && rec.SessionNumber > limit && rec.Marked() {
			count++
		}
	}
	return count, nil
}

func (f *attendanceStoreFake) sessions(classID string) []int {
	sessions, _ := f.ListOpenedSessions(context.Background(), nil, classID)
	return sessions
}
