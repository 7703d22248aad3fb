package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Combo represents a gesture sequence definition stored in the database.
// Sequence holds ordered gesture labels; Timeout bounds the whole sequence.
type Combo struct {
	ID        string
	Name      string
	Sequence  []string
	Timeout   time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComboRepository provides CRUD operations for combos.
type ComboRepository struct {
	db *sql.DB
}

// Combos returns the combo repository for this store.
func (s *Store) Combos() *ComboRepository {
	return &ComboRepository{db: s.db}
}

// Create inserts a new combo into the database.
func (r *ComboRepository) Create(c *Combo) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	sequence, err := json.Marshal(c.Sequence)
	if err != nil {
		return fmt.Errorf("failed to encode sequence: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO combos (id, name, sequence, timeout_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(sequence), c.Timeout.Milliseconds(), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByID retrieves a combo by its ID.
func (r *ComboRepository) GetByID(id string) (*Combo, error) {
	c := &Combo{}
	var sequence string
	var timeoutMs int64

	err := r.db.QueryRow(
		`SELECT id, name, sequence, timeout_ms, created_at, updated_at
		 FROM combos WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &sequence, &timeoutMs, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(sequence), &c.Sequence); err != nil {
		return nil, fmt.Errorf("failed to decode sequence: %w", err)
	}
	c.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return c, nil
}

// GetByName retrieves a combo by its name.
func (r *ComboRepository) GetByName(name string) (*Combo, error) {
	c := &Combo{}
	var sequence string
	var timeoutMs int64

	err := r.db.QueryRow(
		`SELECT id, name, sequence, timeout_ms, created_at, updated_at
		 FROM combos WHERE name = ?`,
		name,
	).Scan(&c.ID, &c.Name, &sequence, &timeoutMs, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(sequence), &c.Sequence); err != nil {
		return nil, fmt.Errorf("failed to decode sequence: %w", err)
	}
	c.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return c, nil
}

// List retrieves all combos from the database.
func (r *ComboRepository) List() ([]*Combo, error) {
	rows, err := r.db.Query(
		`SELECT id, name, sequence, timeout_ms, created_at, updated_at
		 FROM combos ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var combos []*Combo
	for rows.Next() {
		c := &Combo{}
		var sequence string
		var timeoutMs int64

		err := rows.Scan(&c.ID, &c.Name, &sequence, &timeoutMs, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(sequence), &c.Sequence); err != nil {
			return nil, fmt.Errorf("failed to decode sequence: %w", err)
		}
		c.Timeout = time.Duration(timeoutMs) * time.Millisecond
		combos = append(combos, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return combos, nil
}

// Update updates an existing combo in the database.
func (r *ComboRepository) Update(c *Combo) error {
	c.UpdatedAt = time.Now()

	sequence, err := json.Marshal(c.Sequence)
	if err != nil {
		return fmt.Errorf("failed to encode sequence: %w", err)
	}

	result, err := r.db.Exec(
		`UPDATE combos SET name = ?, sequence = ?, timeout_ms = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, string(sequence), c.Timeout.Milliseconds(), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a combo from the database by its ID.
func (r *ComboRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM combos WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// EnsureDefaults seeds the combo library when the table is empty, so a
// fresh database starts with the built-in combos.
func (r *ComboRepository) EnsureDefaults(defaults []*Combo) error {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM combos`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, c := range defaults {
		if err := r.Create(c); err != nil {
			return err
		}
	}
	return nil
}
