package db

import "context"

func (s *Store) Enqueue(ctx context.Context, userID int64, payload string) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO offlinemessage (userid, message) VALUES (?, ?)", userID, payload,
	)
	return err
}

// Take reads and deletes the queued messages of userID in one transaction,
// oldest first. Messages enqueued concurrently after the read stay queued.
func (s *Store) Take(ctx context.Context, userID int64) ([]string, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	rows, err := tx.QueryContext(ctx,
		"SELECT id, message FROM offlinemessage WHERE userid = ? ORDER BY id ASC", userID,
	)
	if err != nil {
		return nil, err
	}

	var (
		messages []string
		lastID   int64
	)
	for rows.Next() {
		var msg string
		if err := rows.Scan(&lastID, &msg); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(messages) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM offlinemessage WHERE userid = ? AND id <= ?", userID, lastID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return messages, nil
}
