package db

import (
	"context"

	"chatd/models"
)

func (s *Store) AddFriend(ctx context.Context, userID, friendID int64) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO friends (userid, friendid) VALUES (?, ?)", userID, friendID,
	)
	return err
}

// Friends returns the users userID has added, with their current state.
func (s *Store) Friends(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT u.id, u.name, u.state
		FROM users u INNER JOIN friends f ON f.friendid = u.id
		WHERE f.userid = ?
		ORDER BY u.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.State); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}

	return friends, rows.Err()
}
