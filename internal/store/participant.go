package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/choreflow/internal/model"
)

// ParticipantStore persists participants and their PIN hashes. It
// satisfies chore.Directory.
type ParticipantStore struct {
	db *sql.DB
}

func NewParticipantStore(db *sql.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

const participantCols = `id, name, role, pin IS NOT NULL, created_at, updated_at`

func scanParticipant(scanner interface{ Scan(...any) error }) (*model.Participant, error) {
	var p model.Participant
	if err := scanner.Scan(&p.ID, &p.Name, &p.Role, &p.HasPIN, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert creates the participant or updates its name and role.
func (s *ParticipantStore) Upsert(ctx context.Context, id, name string, role model.Role) (*model.Participant, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, updated_at = excluded.updated_at`,
		id, name, role, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	return s.GetParticipant(ctx, id)
}

func (s *ParticipantStore) List(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+participantCols+` FROM participants ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

func (s *ParticipantStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+participantCols+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query participant: %w", err)
	}
	return p, nil
}

func (s *ParticipantStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

// SetPIN stores a bcrypt hash of pin. An empty pin clears it.
func (s *ParticipantStore) SetPIN(ctx context.Context, id, pin string) error {
	var hash sql.NullString
	if pin != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		hash = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET pin = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("participant %s not found", id)
	}
	return nil
}

// VerifyPIN reports whether pin matches the stored hash. A participant
// without a PIN accepts any value.
func (s *ParticipantStore) VerifyPIN(ctx context.Context, id, pin string) (bool, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin FROM participants WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pin: %w", err)
	}
	if !hash.Valid {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(pin)) == nil, nil
}
