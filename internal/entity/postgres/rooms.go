package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/ids"
)

func (s *Store) CreateRoom(ownerID, name, topic string, vis entity.Visibility) (*entity.Room, error) {
	r := &entity.Room{
		RoomID:      ids.New(),
		Name:        name,
		Topic:       topic,
		Visibility:  vis,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
		MemberCount: 1,
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO rooms (room_id, name, name_lower, topic, visibility, owner_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.RoomID, r.Name, strings.ToLower(r.Name), r.Topic, r.Visibility, r.OwnerID, r.CreatedAt)
	if isUniqueViolation(err) {
		return nil, apierr.Conflict("room name already exists")
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`INSERT INTO memberships (room_id, user_id, role) VALUES ($1,$2,$3)`,
		r.RoomID, ownerID, entity.RoleOwner); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) scanRoom(row *sql.Row) (*entity.Room, error) {
	r := &entity.Room{}
	var pinned sql.NullString
	err := row.Scan(&r.RoomID, &r.Name, &r.Topic, &r.Visibility, &r.OwnerID, &r.CreatedAt, &pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("room not found")
	}
	if err != nil {
		return nil, err
	}
	if pinned.Valid && pinned.String != "" {
		r.PinnedMessageIDs = strings.Split(pinned.String, ",")
	}
	r.MemberCount = s.countMembers(r.RoomID)
	return r, nil
}

func (s *Store) countMembers(roomID string) int {
	var n int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE room_id=$1`, roomID).Scan(&n)
	return n
}

const roomCols = `room_id, name, topic, visibility, owner_id, created_at, pinned_message_ids`

func (s *Store) GetRoomByID(roomID string) (*entity.Room, error) {
	row := s.db.QueryRow(`SELECT `+roomCols+` FROM rooms WHERE room_id=$1`, roomID)
	return s.scanRoom(row)
}

func (s *Store) GetRoomByName(name string) (*entity.Room, error) {
	row := s.db.QueryRow(`SELECT `+roomCols+` FROM rooms WHERE name_lower=$1`, strings.ToLower(name))
	return s.scanRoom(row)
}

func (s *Store) Resolve(idOrName string) (*entity.Room, error) {
	if ids.Valid(idOrName) {
		if r, err := s.GetRoomByID(idOrName); err == nil {
			return r, nil
		}
	}
	return s.GetRoomByName(idOrName)
}

func (s *Store) RenameRoom(roomID, newName string) (*entity.Room, error) {
	res, err := s.db.Exec(`UPDATE rooms SET name=$2, name_lower=$3 WHERE room_id=$1`,
		roomID, newName, strings.ToLower(newName))
	if isUniqueViolation(err) {
		return nil, apierr.Conflict("room name already exists")
	}
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apierr.NotFound("room not found")
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) UpdateRoomTopic(roomID, topic string) (*entity.Room, error) {
	res, err := s.db.Exec(`UPDATE rooms SET topic=$2 WHERE room_id=$1`, roomID, topic)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apierr.NotFound("room not found")
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) ListPublicRooms(query string, limit int) []*entity.Room {
	rows, err := s.db.Query(`SELECT `+roomCols+` FROM rooms WHERE visibility='public' AND name ILIKE $1 LIMIT $2`,
		"%"+query+"%", limit)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return s.scanRoomRows(rows)
}

func (s *Store) ListMyRooms(userID string) []*entity.Room {
	rows, err := s.db.Query(
		`SELECT r.room_id, r.name, r.topic, r.visibility, r.owner_id, r.created_at, r.pinned_message_ids
		 FROM rooms r JOIN memberships m ON m.room_id = r.room_id WHERE m.user_id=$1`, userID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return s.scanRoomRows(rows)
}

func (s *Store) scanRoomRows(rows *sql.Rows) []*entity.Room {
	var out []*entity.Room
	for rows.Next() {
		r := &entity.Room{}
		var pinned sql.NullString
		if err := rows.Scan(&r.RoomID, &r.Name, &r.Topic, &r.Visibility, &r.OwnerID, &r.CreatedAt, &pinned); err != nil {
			continue
		}
		if pinned.Valid && pinned.String != "" {
			r.PinnedMessageIDs = strings.Split(pinned.String, ",")
		}
		r.MemberCount = s.countMembers(r.RoomID)
		out = append(out, r)
	}
	return out
}

func (s *Store) AddPin(roomID, messageID string) (*entity.Room, error) {
	r, err := s.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	for _, id := range r.PinnedMessageIDs {
		if id == messageID {
			return r, nil
		}
	}
	r.PinnedMessageIDs = append(r.PinnedMessageIDs, messageID)
	if _, err := s.db.Exec(`UPDATE rooms SET pinned_message_ids=$2 WHERE room_id=$1`,
		roomID, strings.Join(r.PinnedMessageIDs, ",")); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) RemovePin(roomID, messageID string) (*entity.Room, error) {
	r, err := s.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	out := r.PinnedMessageIDs[:0]
	for _, id := range r.PinnedMessageIDs {
		if id != messageID {
			out = append(out, id)
		}
	}
	r.PinnedMessageIDs = out
	if _, err := s.db.Exec(`UPDATE rooms SET pinned_message_ids=$2 WHERE room_id=$1`,
		roomID, strings.Join(r.PinnedMessageIDs, ",")); err != nil {
		return nil, err
	}
	return r, nil
}
