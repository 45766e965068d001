package postgres

import (
	"database/sql"
	"errors"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
)

func (s *Store) AddMember(roomID, userID string, role entity.Role) (*entity.Room, error) {
	if _, err := s.GetRoomByID(roomID); err != nil {
		return nil, err
	}
	_, err := s.db.Exec(
		`INSERT INTO memberships (room_id, user_id, role) VALUES ($1,$2,$3)
		 ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID, role)
	if err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) RemoveMember(roomID, userID string, policy entity.OwnerLeavePolicy, transferTo string) (*entity.Room, error) {
	r, err := s.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	role, ok := s.GetRole(roomID, userID)
	if !ok {
		return r, nil
	}

	if role == entity.RoleOwner {
		switch policy {
		case entity.OwnerLeaveAutoPromote:
			next := s.firstAdmin(roomID, userID)
			if next != "" {
				if _, err := s.db.Exec(`UPDATE memberships SET role=$3 WHERE room_id=$1 AND user_id=$2`,
					roomID, next, entity.RoleOwner); err != nil {
					return nil, err
				}
				if _, err := s.db.Exec(`UPDATE rooms SET owner_id=$2 WHERE room_id=$1`, roomID, next); err != nil {
					return nil, err
				}
			}
		default:
			if transferTo == "" {
				return nil, apierr.Conflict("owner must transfer ownership before leaving")
			}
			if transferTo == userID || !s.IsMember(roomID, transferTo) {
				return nil, apierr.BadRequest("transfer_to must be an existing member")
			}
			if _, err := s.db.Exec(`UPDATE memberships SET role=$3 WHERE room_id=$1 AND user_id=$2`,
				roomID, transferTo, entity.RoleOwner); err != nil {
				return nil, err
			}
			if _, err := s.db.Exec(`UPDATE rooms SET owner_id=$2 WHERE room_id=$1`, roomID, transferTo); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.db.Exec(`DELETE FROM memberships WHERE room_id=$1 AND user_id=$2`, roomID, userID); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) firstAdmin(roomID, excluding string) string {
	var uid string
	err := s.db.QueryRow(
		`SELECT user_id FROM memberships WHERE room_id=$1 AND role=$2 AND user_id<>$3 LIMIT 1`,
		roomID, entity.RoleAdmin, excluding).Scan(&uid)
	if err != nil {
		return ""
	}
	return uid
}

func (s *Store) SetRole(roomID, callerID, targetID string, role entity.Role) (*entity.Room, error) {
	callerRole, ok := s.GetRole(roomID, callerID)
	if !ok {
		return nil, apierr.Forbidden("caller is not a member")
	}
	if role == entity.RoleOwner && callerRole != entity.RoleOwner {
		return nil, apierr.Forbidden("only the owner may assign ownership")
	}
	if !s.IsMember(roomID, targetID) {
		return nil, apierr.NotFound("target is not a member")
	}
	if role == entity.RoleOwner {
		if _, err := s.db.Exec(`UPDATE memberships SET role=$3 WHERE room_id=$1 AND user_id=$2`,
			roomID, callerID, entity.RoleAdmin); err != nil {
			return nil, err
		}
		if _, err := s.db.Exec(`UPDATE rooms SET owner_id=$2 WHERE room_id=$1`, roomID, targetID); err != nil {
			return nil, err
		}
	}
	if _, err := s.db.Exec(`UPDATE memberships SET role=$3 WHERE room_id=$1 AND user_id=$2`,
		roomID, targetID, role); err != nil {
		return nil, err
	}
	return s.GetRoomByID(roomID)
}

func (s *Store) GetRole(roomID, userID string) (entity.Role, bool) {
	var role entity.Role
	err := s.db.QueryRow(`SELECT role FROM memberships WHERE room_id=$1 AND user_id=$2`,
		roomID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return role, true
}

func (s *Store) IsMember(roomID, userID string) bool {
	_, ok := s.GetRole(roomID, userID)
	return ok
}

func (s *Store) ListMembers(roomID string) map[string]entity.Role {
	rows, err := s.db.Query(`SELECT user_id, role FROM memberships WHERE room_id=$1`, roomID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := make(map[string]entity.Role)
	for rows.Next() {
		var uid string
		var role entity.Role
		if err := rows.Scan(&uid, &role); err == nil {
			out[uid] = role
		}
	}
	return out
}
