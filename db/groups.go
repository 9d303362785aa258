package db

import (
	"context"

	"chatd/models"
)

func (s *Store) CreateGroup(ctx context.Context, name, desc string) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		"INSERT INTO allgroup (groupname, groupdesc) VALUES (?, ?)", name, desc,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM allgroup WHERE id = ?", groupID)
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

func (s *Store) AddMember(ctx context.Context, groupID, userID int64, role models.Role) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO groupuser (groupid, userid, grouprole) VALUES (?, ?, ?)",
		groupID, userID, role,
	)
	return err
}

// GroupsOf returns every group userID belongs to, each with its full member list.
func (s *Store) GroupsOf(ctx context.Context, userID int64) ([]models.Group, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT g.id, g.groupname, g.groupdesc
		FROM allgroup g INNER JOIN groupuser gu ON gu.groupid = g.id
		WHERE gu.userid = ?
		ORDER BY g.id`, userID)
	if err != nil {
		return nil, err
	}

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Desc); err != nil {
			rows.Close()
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range groups {
		members, err := s.members(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}

	return groups, nil
}

func (s *Store) members(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT u.id, u.name, u.state, gu.grouprole
		FROM users u INNER JOIN groupuser gu ON gu.userid = u.id
		WHERE gu.groupid = ?
		ORDER BY u.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.ID, &m.Name, &m.State, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// MemberIDs lists the ids of every member of groupID, the caller included.
func (s *Store) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT userid FROM groupuser WHERE groupid = ? ORDER BY userid", groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
