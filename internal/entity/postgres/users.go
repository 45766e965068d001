package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
)

func (s *Store) EnsureUser(userID, displayName string) *entity.User {
	ctx := context.Background()
	u, err := s.GetUser(userID)
	if err == nil {
		return u
	}
	if displayName == "" {
		displayName = "guest-" + userID[:8]
	}
	_, _ = s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, display_name) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, displayName)
	return &entity.User{UserID: userID, DisplayName: displayName}
}

func (s *Store) GetUser(userID string) (*entity.User, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT user_id, display_name, COALESCE(photo_cid,''), COALESCE(bio,''),
		        COALESCE(status_text,''), COALESCE(status_emoji,'')
		 FROM users WHERE user_id = $1`, userID)

	u := &entity.User{}
	err := row.Scan(&u.UserID, &u.DisplayName, &u.PhotoCID, &u.Bio, &u.StatusText, &u.StatusEmoji)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) UpdateUser(userID string, patch func(*entity.User)) (*entity.User, error) {
	u, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	patch(u)
	_, err = s.db.ExecContext(context.Background(),
		`UPDATE users SET display_name=$2, photo_cid=$3, bio=$4, status_text=$5, status_emoji=$6
		 WHERE user_id=$1`, u.UserID, u.DisplayName, u.PhotoCID, u.Bio, u.StatusText, u.StatusEmoji)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) SearchUsers(query string, limit int) []*entity.User {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT user_id, display_name FROM users WHERE display_name ILIKE $1 LIMIT $2`,
		"%"+query+"%", limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*entity.User
	for rows.Next() {
		u := &entity.User{}
		if err := rows.Scan(&u.UserID, &u.DisplayName); err == nil {
			out = append(out, u)
		}
	}
	return out
}
