package db

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"chatd/models"
)

// CreateUser stores a new offline user with a hashed password and returns
// the assigned id.
func (s *Store) CreateUser(ctx context.Context, name, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	result, err := s.conn.ExecContext(ctx,
		"INSERT INTO users (name, password, state) VALUES (?, ?, ?)",
		name, string(hashed), models.Offline,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, name, password, state FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &u.Password, &u.State)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// Authenticate reports whether id exists and password matches its hash.
// Unknown ids and wrong passwords both yield ok == false with a nil error.
func (s *Store) Authenticate(ctx context.Context, id int64, password string) (models.User, bool, error) {
	u, err := s.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return models.User{}, false, nil
	}
	u.Password = ""
	return u, true, nil
}

func (s *Store) GetState(ctx context.Context, id int64) (models.State, error) {
	var state models.State
	err := s.conn.QueryRowContext(ctx, "SELECT state FROM users WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offline, ErrNotFound
	}
	return state, err
}

// MarkOnline flips an offline user to online. It returns false when the
// user was not offline, which means another session already holds it.
func (s *Store) MarkOnline(ctx context.Context, id int64) (bool, error) {
	result, err := s.conn.ExecContext(ctx,
		"UPDATE users SET state = ? WHERE id = ? AND state = ?",
		models.Online, id, models.Offline,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (s *Store) MarkOffline(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "UPDATE users SET state = ? WHERE id = ?", models.Offline, id)
	return err
}

// ResetState marks every online user offline and returns how many changed.
func (s *Store) ResetState(ctx context.Context) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		"UPDATE users SET state = ? WHERE state = ?",
		models.Offline, models.Online,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
