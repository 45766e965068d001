package postgres

import (
	"time"

	"github.com/openrooms/orc/internal/entity"
)

func (s *Store) BanMember(roomID, userID string) (*entity.Room, error) {
	if _, err := s.GetRoomByID(roomID); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`INSERT INTO room_bans (room_id, user_id) VALUES ($1,$2)
		ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM memberships WHERE room_id=$1 AND user_id=$2`, roomID, userID); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) UnbanMember(roomID, userID string) (*entity.Room, error) {
	if _, err := s.db.Exec(`DELETE FROM room_bans WHERE room_id=$1 AND user_id=$2`, roomID, userID); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) IsBanned(roomID, userID string) bool {
	var exists bool
	_ = s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM room_bans WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID).Scan(&exists)
	return exists
}

func (s *Store) MuteMember(roomID, userID string, until time.Time) (*entity.Room, error) {
	if _, err := s.GetRoomByID(roomID); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`INSERT INTO room_mutes (room_id, user_id, muted_until) VALUES ($1,$2,$3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET muted_until=$3`, roomID, userID, until); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) UnmuteMember(roomID, userID string) (*entity.Room, error) {
	if _, err := s.db.Exec(`DELETE FROM room_mutes WHERE room_id=$1 AND user_id=$2`, roomID, userID); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) IsMuted(roomID, userID string) bool {
	var until time.Time
	err := s.db.QueryRow(`SELECT muted_until FROM room_mutes WHERE room_id=$1 AND user_id=$2`,
		roomID, userID).Scan(&until)
	if err != nil {
		return false
	}
	return time.Now().Before(until)
}
