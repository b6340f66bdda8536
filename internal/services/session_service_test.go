package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/ev-charging-log/internal/domain"
	"github.com/tbourn/ev-charging-log/internal/repo"
)

// ----- Store adapters -----

// storeRepo forwards to the real repository functions.
type storeRepo struct{}

func (storeRepo) CreateSession(ctx context.Context, db *gorm.DB, v map[string]any) (*domain.ChargingSession, error) {
	return repo.CreateSession(ctx, db, v)
}
func (storeRepo) ListSessions(ctx context.Context, db *gorm.DB) ([]domain.ChargingSession, error) {
	return repo.ListSessions(ctx, db)
}
func (storeRepo) ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChargingSession, error) {
	return repo.ListSessionsPage(ctx, db, offset, limit)
}
func (storeRepo) CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountSessions(ctx, db)
}
func (storeRepo) ListLocations(ctx context.Context, db *gorm.DB) ([]repo.LocationRow, error) {
	return repo.ListLocations(ctx, db)
}
func (storeRepo) ListNotes(ctx context.Context, db *gorm.DB) ([]string, error) {
	return repo.ListNotes(ctx, db)
}
func (storeRepo) UpdateSession(ctx context.Context, db *gorm.DB, id string, set map[string]any) error {
	return repo.UpdateSession(ctx, db, id, set)
}
func (storeRepo) GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, scope, key, now)
}
func (storeRepo) CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, sessionID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, scope, key, sessionID, status, ttl)
}

// fakeRepo records calls and returns canned results. Embedding storeRepo
// keeps it a complete SessionRepo; tests only override what they need.
type fakeRepo struct {
	storeRepo

	calls int

	notes    []string
	notesErr error

	countTotal int64
	pageOffset int
	pageLimit  int
	pageItems  []domain.ChargingSession
	pageCalled bool

	updateErr error
}

func (r *fakeRepo) ListNotes(ctx context.Context, db *gorm.DB) ([]string, error) {
	r.calls++
	return r.notes, r.notesErr
}

func (r *fakeRepo) CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	r.calls++
	return r.countTotal, nil
}

func (r *fakeRepo) ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChargingSession, error) {
	r.calls++
	r.pageCalled = true
	r.pageOffset, r.pageLimit = offset, limit
	return r.pageItems, nil
}

func (r *fakeRepo) UpdateSession(ctx context.Context, db *gorm.DB, id string, set map[string]any) error {
	r.calls++
	return r.updateErr
}

// ----- Helpers -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*SessionService, *gorm.DB) {
	db := newServiceDB(t)
	return NewSessionService(db, storeRepo{}), db
}

func payload(t *testing.T, js string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(js), &m); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return m
}

const validCreate = `{
	"vehicle_id": 1,
	"start_time": "2025-03-01T10:00:00Z",
	"kwh": 23.4,
	"cost_huf": 4210,
	"source": "manual",
	"provider": "Ionity",
	"unknown_key": "ignored"
}`

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	n, err := repo.CountSessions(context.Background(), db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func strp(s string) *string { return &s }

// ----- Create -----

func TestCreate_Success_DefaultsAndConversion(t *testing.T) {
	svc, db := newTestService(t)

	res, err := svc.Create(context.Background(), payload(t, validCreate), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID == "" || res.Replayed {
		t.Fatalf("unexpected result: %+v", res)
	}

	var got domain.ChargingSession
	if err := db.First(&got, "id = ?", res.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.VehicleID == nil || *got.VehicleID != "1" {
		t.Fatalf("vehicle_id should be stored as text, got %v", got.VehicleID)
	}
	if got.Currency == nil || *got.Currency != "HUF" {
		t.Fatalf("currency default not applied: %v", got.Currency)
	}
	if got.StartTime == nil || !got.StartTime.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("start_time: %v", got.StartTime)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at must be set")
	}
}

func TestCreate_ExplicitNullCurrencyIsKept(t *testing.T) {
	svc, db := newTestService(t)
	svc.DefaultCurrency = "EUR"

	p := payload(t, validCreate)
	p["currency"] = json.RawMessage("null")
	res, err := svc.Create(context.Background(), p, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var got domain.ChargingSession
	if err := db.First(&got, "id = ?", res.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Currency != nil {
		t.Fatalf("explicit null currency should be stored as NULL, got %q", *got.Currency)
	}
}

func TestCreate_MissingFields_NoStorageAccess(t *testing.T) {
	svc := &SessionService{} // nil DB: any storage access would panic

	_, err := svc.Create(context.Background(), payload(t, `{"kwh": 1, "notes": "x"}`), "")
	var mf *MissingFieldsError
	if !errors.As(err, &mf) || !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	want := []string{"vehicle_id", "start_time", "cost_huf", "source"}
	if !reflect.DeepEqual(mf.Fields, want) {
		t.Fatalf("missing fields: got %v want %v", mf.Fields, want)
	}
	if mf.Error() != "Missing fields: vehicle_id, start_time, cost_huf, source" {
		t.Fatalf("message: %q", mf.Error())
	}
}

func TestCreate_PresentNullRequiredFailsInStorage(t *testing.T) {
	svc, db := newTestService(t)

	p := payload(t, validCreate)
	p["kwh"] = json.RawMessage("null")
	_, err := svc.Create(context.Background(), p, "")
	if err == nil {
		t.Fatalf("expected persistence error for NULL kwh")
	}
	if errors.Is(err, ErrMissingFields) || errors.Is(err, ErrInvalidField) || errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected raw persistence error, got %v", err)
	}
	if countRows(t, db) != 0 {
		t.Fatalf("failed create must not leave a row")
	}
}

func TestCreate_InvalidField(t *testing.T) {
	svc, db := newTestService(t)

	p := payload(t, validCreate)
	p["start_time"] = json.RawMessage(`"not a date"`)
	_, err := svc.Create(context.Background(), p, "")
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "start_time" || !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected FieldError for start_time, got %v", err)
	}
	if countRows(t, db) != 0 {
		t.Fatalf("invalid create must not insert")
	}
}

func TestCreate_Duplicate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, payload(t, validCreate), ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	before := testutil.ToFloat64(sessionWrites.WithLabelValues("create", outcomeDuplicate))

	_, err := svc.Create(ctx, payload(t, validCreate), "")
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	if got := testutil.ToFloat64(sessionWrites.WithLabelValues("create", outcomeDuplicate)); got != before+1 {
		t.Fatalf("duplicate counter: got %v want %v", got, before+1)
	}
	if countRows(t, db) != 1 {
		t.Fatalf("duplicate must not insert a second row")
	}
}

func TestCreate_IdempotencyKeyReplays(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, payload(t, validCreate), "key-1")
	if err != nil || first.Replayed {
		t.Fatalf("first create: %+v %v", first, err)
	}
	second, err := svc.Create(ctx, payload(t, validCreate), "key-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.ID != first.ID {
		t.Fatalf("expected replay of %s, got %+v", first.ID, second)
	}
	if countRows(t, db) != 1 {
		t.Fatalf("replay must not insert")
	}

	// A different key for the same session is still a conflict.
	if _, err := svc.Create(ctx, payload(t, validCreate), "key-2"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession for new key, got %v", err)
	}
}

func TestCreate_ExpiredIdempotencyKeyIsNotReplayed(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	if _, err := repo.CreateIdempotency(ctx, db, CreateScope, "old", "gone", 201, -time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := svc.Create(ctx, payload(t, validCreate), "old")
	if err != nil || res.Replayed || res.ID == "gone" {
		t.Fatalf("expired key must not replay: %+v %v", res, err)
	}
	if countRows(t, db) != 1 {
		t.Fatalf("expected a fresh insert")
	}
}

// ----- Reads -----

func TestList_OrderAndPage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, start := range []string{"2025-01-01T08:00:00Z", "2025-03-01T08:00:00Z", "2025-02-01T08:00:00Z"} {
		p := payload(t, validCreate)
		p["vehicle_id"] = json.RawMessage(fmt.Sprintf(`"v%d"`, i))
		p["start_time"] = json.RawMessage(fmt.Sprintf(`%q`, start))
		if _, err := svc.Create(ctx, p, ""); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	all, err := svc.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("List: %d %v", len(all), err)
	}
	if *all[0].VehicleID != "v1" || *all[1].VehicleID != "v2" || *all[2].VehicleID != "v0" {
		t.Fatalf("order by start_time desc violated: %s %s %s", *all[0].VehicleID, *all[1].VehicleID, *all[2].VehicleID)
	}

	page, total, err := svc.ListPage(ctx, 2, 2)
	if err != nil || total != 3 || len(page) != 1 || *page[0].VehicleID != "v0" {
		t.Fatalf("ListPage: total=%d len=%d err=%v", total, len(page), err)
	}
}

func TestListPage_DefaultsAndEmpty(t *testing.T) {
	db := newServiceDB(t)
	fr := &fakeRepo{countTotal: 0}
	svc := NewSessionService(db, fr)

	items, total, err := svc.ListPage(context.Background(), 0, 0)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty page: %v %d %v", items, total, err)
	}
	if fr.pageCalled {
		t.Fatalf("page query should be skipped when total is 0")
	}

	fr.countTotal = 50
	if _, _, err := svc.ListPage(context.Background(), -3, -1); err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if fr.pageOffset != 0 || fr.pageLimit != 20 {
		t.Fatalf("defaults not applied: offset=%d limit=%d", fr.pageOffset, fr.pageLimit)
	}
}

func TestNotes_FiltersBlank(t *testing.T) {
	db := newServiceDB(t)
	fr := &fakeRepo{notes: []string{"  ", "a", "b"}}
	svc := NewSessionService(db, fr)

	got, err := svc.Notes(context.Background())
	if err != nil || !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Notes: %v %v", got, err)
	}

	fr.notesErr = errors.New("boom")
	if _, err := svc.Notes(context.Background()); err == nil {
		t.Fatalf("expected error propagation")
	}
}

func TestLocations_EndToEnd(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rows := []string{
		`{"provider": "Ionity", "city": "Győr", "location_detail": "M1 rest area"}`,
		`{"provider": "Ionity", "city": "Győr", "location_detail": "Árkád"}`,
		`{"provider": "Mol", "city": null}`,
	}
	for i, extra := range rows {
		p := payload(t, validCreate)
		p["vehicle_id"] = json.RawMessage(fmt.Sprintf(`"v%d"`, i))
		for k, v := range payload(t, extra) {
			p[k] = v
		}
		if _, err := svc.Create(ctx, p, ""); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := svc.Locations(ctx)
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	want := LocationIndex{
		"Ionity": {"Győr": {"M1 rest area", "Árkád"}},
		"Mol":    {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Locations: got %v want %v", got, want)
	}
}

func TestBuildLocationIndex(t *testing.T) {
	rows := []repo.LocationRow{
		{Provider: "P1", City: strp("Budapest"), LocationDetail: strp("B")},
		{Provider: "P1", City: strp("Budapest"), LocationDetail: strp("A")},
		{Provider: "P1", City: strp("Budapest"), LocationDetail: strp("A")},
		{Provider: "P1", City: strp("Budapest"), LocationDetail: strp("")},
		{Provider: "P1", City: strp("Debrecen"), LocationDetail: nil},
		{Provider: "P1", City: strp(""), LocationDetail: strp("ignored")},
		{Provider: "P2", City: nil, LocationDetail: strp("ignored")},
	}
	got := BuildLocationIndex(rows)
	want := LocationIndex{
		"P1": {
			"Budapest": {"A", "B"},
			"Debrecen": {},
		},
		"P2": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	if idx := BuildLocationIndex(nil); idx == nil || len(idx) != 0 {
		t.Fatalf("empty input should give an empty, non-nil index")
	}
}

// ----- Update -----

func TestUpdate_NoValidFields_NoStorageAccess(t *testing.T) {
	fr := &fakeRepo{}
	svc := &SessionService{Repo: fr} // nil DB

	for _, js := range []string{`{}`, `{"id": "x", "created_at": "2025-01-01T00:00:00Z", "vehicle_id": "v", "bogus": 1}`} {
		if err := svc.Update(context.Background(), "abc", payload(t, js)); !errors.Is(err, ErrNoValidFields) {
			t.Fatalf("%s: expected ErrNoValidFields, got %v", js, err)
		}
	}
	if fr.calls != 0 {
		t.Fatalf("repository must not be called, got %d calls", fr.calls)
	}
}

func TestUpdate_OnlyGivenColumnsChange(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, payload(t, validCreate), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var before domain.ChargingSession
	if err := db.First(&before, "id = ?", res.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	err = svc.Update(ctx, res.ID, payload(t, `{"notes": "fast", "id": "hijack", "vehicle_id": "other"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var after domain.ChargingSession
	if err := db.First(&after, "id = ?", res.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Notes == nil || *after.Notes != "fast" {
		t.Fatalf("notes not updated: %v", after.Notes)
	}
	if *after.VehicleID != *before.VehicleID || !after.CreatedAt.Equal(before.CreatedAt) || *after.KWh != *before.KWh {
		t.Fatalf("untouched columns changed: before=%+v after=%+v", before, after)
	}
}

func TestUpdate_NotFoundAndInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Update(ctx, "missing", payload(t, `{"city": "Pécs"}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.Update(ctx, "missing", payload(t, `{"kwh": "lots"}`)); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestUpdate_RepoErrorPropagates(t *testing.T) {
	db := newServiceDB(t)
	boom := errors.New("disk full")
	svc := NewSessionService(db, &fakeRepo{updateErr: boom})

	before := testutil.ToFloat64(sessionWrites.WithLabelValues("update", outcomeError))
	if err := svc.Update(context.Background(), "abc", payload(t, `{"city": "Eger"}`)); !errors.Is(err, boom) {
		t.Fatalf("expected raw error, got %v", err)
	}
	if got := testutil.ToFloat64(sessionWrites.WithLabelValues("update", outcomeError)); got != before+1 {
		t.Fatalf("error counter: got %v want %v", got, before+1)
	}
}
