// Package services – SessionService
//
// This file implements SessionService, the application-level component that
// owns the lifecycle of charging session records. It validates raw JSON
// payloads against the column allow-list, converts values to their column
// types, and runs every storage call inside a request-scoped unit: writes in a
// transaction, reads on a single pinned connection.
//
// Observability: public methods are OpenTelemetry-instrumented and write
// outcomes are counted in charging_session_writes_total.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ev-charging-log/internal/domain"
	"github.com/tbourn/ev-charging-log/internal/repo"
	"github.com/tbourn/ev-charging-log/internal/utils"
)

// CreateScope namespaces Idempotency-Key records written by Create.
const CreateScope = "charging_sessions.create"

const tracerName = "services/SessionService"

// SessionRepo defines the repository contract required by SessionService.
// Every method receives the scoped handle it must run on.
type SessionRepo interface {
	// CreateSession inserts one row built from column/value pairs.
	CreateSession(ctx context.Context, db *gorm.DB, values map[string]any) (*domain.ChargingSession, error)

	// ListSessions returns all rows, most recent start time first.
	ListSessions(ctx context.Context, db *gorm.DB) ([]domain.ChargingSession, error)

	// ListSessionsPage returns a window of the ListSessions ordering.
	ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChargingSession, error)

	// CountSessions returns the total number of rows.
	CountSessions(ctx context.Context, db *gorm.DB) (int64, error)

	// ListLocations returns distinct provider/city/location_detail triples.
	ListLocations(ctx context.Context, db *gorm.DB) ([]repo.LocationRow, error)

	// ListNotes returns distinct non-blank notes in ascending order.
	ListNotes(ctx context.Context, db *gorm.DB) ([]string, error)

	// UpdateSession applies a partial update; repo.ErrNotFound when no row matches.
	UpdateSession(ctx context.Context, db *gorm.DB, id string, set map[string]any) error

	// GetIdempotency returns a live record for (scope, key) or repo.ErrNotFound.
	GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error)

	// CreateIdempotency stores a record; repo.ErrDuplicate if (scope, key) exists.
	CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, sessionID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// SessionService provides create, list, lookup and update operations over
// charging sessions.
type SessionService struct {
	// DB is the root GORM handle; each call derives its own scope from it.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo

	// DefaultCurrency is stored when a create payload omits the currency key.
	DefaultCurrency string
	// IdempotencyTTL bounds how long an Idempotency-Key can be replayed.
	IdempotencyTTL time.Duration
}

// NewSessionService constructs a SessionService with default currency and TTL.
func NewSessionService(db *gorm.DB, r SessionRepo) *SessionService {
	return &SessionService{
		DB:              db,
		Repo:            r,
		DefaultCurrency: domain.DefaultCurrency,
		IdempotencyTTL:  24 * time.Hour,
	}
}

// CreateResult is the outcome of Create. Replayed is true when an earlier
// request with the same Idempotency-Key already created the session.
type CreateResult struct {
	ID       string
	Replayed bool
}

// Create validates payload and inserts a new session.
//
// Required keys must be present (a present null still passes and fails later
// on the NOT NULL constraint). Unknown keys are ignored. When idemKey is not
// empty, a live record for it short-circuits the insert and returns the stored
// id; otherwise the record is written in the same transaction as the row.
func (s *SessionService) Create(ctx context.Context, payload map[string]json.RawMessage, idemKey string) (CreateResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Create",
		trace.WithAttributes(attribute.Bool("idempotency.key_present", idemKey != "")),
	)
	defer span.End()

	if missing := missingRequired(payload); len(missing) > 0 {
		sessionWrites.WithLabelValues("create", outcomeInvalid).Inc()
		return CreateResult{}, &MissingFieldsError{Fields: missing}
	}

	values, err := decodePayload(payload, domain.LookupColumn)
	if err != nil {
		sessionWrites.WithLabelValues("create", outcomeInvalid).Inc()
		return CreateResult{}, err
	}
	if _, ok := payload["currency"]; !ok && s.DefaultCurrency != "" {
		values["currency"] = s.DefaultCurrency
	}

	var res CreateResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idemKey != "" {
			rec, err := s.Repo.GetIdempotency(ctx, tx, CreateScope, idemKey, time.Now().UTC())
			switch {
			case err == nil:
				res = CreateResult{ID: rec.SessionID, Replayed: true}
				return nil
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
		}

		row, err := s.Repo.CreateSession(ctx, tx, values)
		if err != nil {
			return err
		}
		if idemKey != "" {
			if _, err := s.Repo.CreateIdempotency(ctx, tx, CreateScope, idemKey, row.ID, http.StatusCreated, s.ttl()); err != nil {
				return err
			}
		}
		res = CreateResult{ID: row.ID}
		return nil
	})

	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key may have won the race.
		if idemKey != "" {
			if rec, lerr := s.Repo.GetIdempotency(ctx, s.DB, CreateScope, idemKey, time.Now().UTC()); lerr == nil {
				sessionWrites.WithLabelValues("create", outcomeReplayed).Inc()
				zerolog.Ctx(ctx).Debug().Str("session_id", rec.SessionID).Msg("idempotency key won by concurrent create")
				return CreateResult{ID: rec.SessionID, Replayed: true}, nil
			}
		}
		sessionWrites.WithLabelValues("create", outcomeDuplicate).Inc()
		zerolog.Ctx(ctx).Info().Interface("vehicle_id", values["vehicle_id"]).Msg("duplicate charging session rejected")
		return CreateResult{}, ErrDuplicateSession
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sessionWrites.WithLabelValues("create", outcomeError).Inc()
		return CreateResult{}, err
	}

	if res.Replayed {
		sessionWrites.WithLabelValues("create", outcomeReplayed).Inc()
	} else {
		sessionWrites.WithLabelValues("create", outcomeCreated).Inc()
	}
	span.SetAttributes(attribute.String("session.id", res.ID))
	return res, nil
}

// List returns every session, most recent start time first.
func (s *SessionService) List(ctx context.Context) ([]domain.ChargingSession, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "List")
	defer span.End()

	var out []domain.ChargingSession
	err := s.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var err error
		out, err = s.Repo.ListSessions(ctx, conn)
		return err
	})
	return out, err
}

// ListPage returns one page of sessions and the total count.
// It applies defaults for invalid page/pageSize.
func (s *SessionService) ListPage(ctx context.Context, page, pageSize int) ([]domain.ChargingSession, int64, error) {
	if page < 1 {
		page = utils.DefaultPage
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	offset := utils.Offset(page, pageSize)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	var (
		items []domain.ChargingSession
		total int64
	)
	err := s.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var err error
		if total, err = s.Repo.CountSessions(ctx, conn); err != nil {
			return err
		}
		if total == 0 {
			items = []domain.ChargingSession{}
			return nil
		}
		items, err = s.Repo.ListSessionsPage(ctx, conn, offset, pageSize)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// LocationIndex maps provider to city to the sorted location details seen
// there. A provider with only city-less rows maps to an empty object.
type LocationIndex map[string]map[string][]string

// Locations returns the provider/city/location_detail hierarchy of all
// sessions that carry a provider.
func (s *SessionService) Locations(ctx context.Context) (LocationIndex, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Locations")
	defer span.End()

	var rows []repo.LocationRow
	err := s.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var err error
		rows, err = s.Repo.ListLocations(ctx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return BuildLocationIndex(rows), nil
}

// BuildLocationIndex folds rows into a LocationIndex. Every provider gets a
// key; rows with a null or empty city add no city; details are deduplicated,
// empty ones dropped, and each list sorted ascending.
func BuildLocationIndex(rows []repo.LocationRow) LocationIndex {
	idx := LocationIndex{}
	for _, r := range rows {
		cities, ok := idx[r.Provider]
		if !ok {
			cities = map[string][]string{}
			idx[r.Provider] = cities
		}
		if r.City == nil || *r.City == "" {
			continue
		}
		details, ok := cities[*r.City]
		if !ok {
			details = []string{}
		}
		if r.LocationDetail != nil && *r.LocationDetail != "" && !contains(details, *r.LocationDetail) {
			details = append(details, *r.LocationDetail)
		}
		cities[*r.City] = details
	}
	for _, cities := range idx {
		for _, details := range cities {
			sort.Strings(details)
		}
	}
	return idx
}

// Notes returns the distinct non-blank notes in ascending order.
func (s *SessionService) Notes(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Notes")
	defer span.End()

	var notes []string
	err := s.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var err error
		notes, err = s.Repo.ListNotes(ctx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

// Update applies the updatable keys of payload to session id. Keys outside
// the allow-list are ignored; if none remain, ErrNoValidFields is returned
// without touching storage. A missing row yields ErrSessionNotFound.
func (s *SessionService) Update(ctx context.Context, id string, payload map[string]json.RawMessage) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Update",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	set, err := decodePayload(payload, domain.MutableColumn)
	if err != nil {
		sessionWrites.WithLabelValues("update", outcomeInvalid).Inc()
		return err
	}
	if len(set) == 0 {
		sessionWrites.WithLabelValues("update", outcomeInvalid).Inc()
		return ErrNoValidFields
	}
	span.SetAttributes(attribute.Int("update.columns", len(set)))

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Repo.UpdateSession(ctx, tx, id, set)
	})
	switch {
	case err == nil:
		sessionWrites.WithLabelValues("update", outcomeUpdated).Inc()
		zerolog.Ctx(ctx).Debug().Str("session_id", id).Int("columns", len(set)).Msg("charging session updated")
		return nil
	case errors.Is(err, repo.ErrNotFound):
		sessionWrites.WithLabelValues("update", outcomeNotFound).Inc()
		return ErrSessionNotFound
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sessionWrites.WithLabelValues("update", outcomeError).Inc()
		return err
	}
}

func (s *SessionService) ttl() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

// missingRequired lists required keys absent from payload.
func missingRequired(payload map[string]json.RawMessage) []string {
	var missing []string
	for _, k := range domain.RequiredOnCreate {
		if _, ok := payload[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// decodePayload converts the keys accepted by lookup to column values and
// drops every other key.
func decodePayload(payload map[string]json.RawMessage, lookup func(string) (domain.Column, bool)) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for key, raw := range payload {
		col, ok := lookup(key)
		if !ok {
			continue
		}
		v, err := col.Decode(raw)
		if err != nil {
			return nil, &FieldError{Field: key, Err: err}
		}
		out[col.Name] = v
	}
	return out, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
