// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/munsheeriocod/voi-ai/model"
)

// SQL is a Store over database/sql. Queries are written with '?' and
// rebound for drivers that use numbered placeholders.
type SQL struct {
	db       *sql.DB
	numbered bool
	close    func() error
}

var _ Store = (*SQL)(nil)

func (s *SQL) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB exposes the underlying handle, for migrations
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

func (s *SQL) CreateCall(ctx context.Context, rec model.CallRecord) (bool, error) {
	if rec.CallID == "" {
		return false, errors.New("create call: empty call id")
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO calls (
			call_id, destination_number, customer_reference, status, status_rank,
			created_at, updated_at, duration, recording_url, error_code
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (call_id) DO NOTHING
	`), string(rec.CallID), rec.DestinationNumber, rec.CustomerReference, string(rec.Status), rec.Status.Rank(),
		unixNanos(rec.CreatedAt), unixNanos(rec.UpdatedAt), rec.Duration, rec.RecordingURL, rec.ErrorCode)
	if err != nil {
		return false, errors.Wrap(err, "insert call")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert call")
	}
	return n > 0, nil
}

func (s *SQL) ApplyStatus(ctx context.Context, u model.StatusUpdate) (bool, error) {
	at := unixNanos(u.At)
	rank := u.Status.Rank()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calls SET
			status = ?,
			status_rank = ?,
			updated_at = ?,
			duration = CASE WHEN ? > 0 THEN ? ELSE duration END,
			recording_url = CASE WHEN ? <> '' THEN ? ELSE recording_url END,
			error_code = CASE WHEN ? <> '' THEN ? ELSE error_code END
		WHERE call_id = ?
		  AND (updated_at < ? OR (updated_at = ? AND status_rank < ?))
	`), string(u.Status), rank, at,
		u.Duration, u.Duration,
		u.RecordingURL, u.RecordingURL,
		u.ErrorCode, u.ErrorCode,
		string(u.CallID),
		at, at, rank)
	if err != nil {
		return false, errors.Wrap(err, "update call status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "update call status")
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM calls WHERE call_id = ?`), string(u.CallID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "lookup call")
	}
	return false, nil
}

func (s *SQL) GetCall(ctx context.Context, id model.SID) (model.CallRecord, error) {
	var (
		rec                  model.CallRecord
		callID, status       string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT call_id, destination_number, customer_reference, status,
		       created_at, updated_at, duration, recording_url, error_code
		FROM calls
		WHERE call_id = ?
	`), string(id)).Scan(
		&callID,
		&rec.DestinationNumber,
		&rec.CustomerReference,
		&status,
		&createdAt,
		&updatedAt,
		&rec.Duration,
		&rec.RecordingURL,
		&rec.ErrorCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CallRecord{}, ErrNotFound
	}
	if err != nil {
		return model.CallRecord{}, errors.Wrap(err, "get call")
	}
	rec.CallID = model.SID(callID)
	rec.Status = model.CallStatus(status)
	rec.CreatedAt = fromUnixNanos(createdAt)
	rec.UpdatedAt = fromUnixNanos(updatedAt)
	return rec, nil
}

func (s *SQL) PutContact(ctx context.Context, c model.Contact) error {
	key := model.PhoneKey(c.PhoneNumber)
	if key == "" {
		return errors.Errorf("contact %q: empty phone number", c.Name)
	}
	if c.ID == "" {
		c.ID = key
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO contacts (id, phone_key, phone_number, name, email, country, plan)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			phone_key = excluded.phone_key,
			phone_number = excluded.phone_number,
			name = excluded.name,
			email = excluded.email,
			country = excluded.country,
			plan = excluded.plan
	`), c.ID, key, c.PhoneNumber, c.Name, c.Email, c.Country, c.Plan)
	if err != nil {
		return errors.Wrap(err, "upsert contact")
	}
	return nil
}

func (s *SQL) ContactByPhone(ctx context.Context, phone string) (model.Contact, error) {
	var c model.Contact
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, phone_number, name, email, country, plan
		FROM contacts
		WHERE phone_key = ?
	`), model.PhoneKey(phone)).Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.Email, &c.Country, &c.Plan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	if err != nil {
		return model.Contact{}, errors.Wrap(err, "get contact")
	}
	return c, nil
}
