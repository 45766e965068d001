package postgres

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/ids"
)

func (s *Store) PutBlob(blob []byte, mimeHint string) *entity.UploadMeta {
	cid := ids.CID(blob)
	sum := sha256.Sum256(blob)
	if meta, _, err := s.GetBlob(cid); err == nil {
		return &entity.UploadMeta{CID: cid, MimeHint: meta, Bytes: len(blob), SHA256: hex.EncodeToString(sum[:])}
	}
	meta := &entity.UploadMeta{CID: cid, MimeHint: mimeHint, Bytes: len(blob), SHA256: hex.EncodeToString(sum[:])}
	_, _ = s.db.Exec(
		`INSERT INTO uploads (cid, mime_hint, sha256, bytes_len, blob) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (cid) DO NOTHING`, cid, mimeHint, meta.SHA256, meta.Bytes, blob)
	return meta
}

func (s *Store) GetBlob(cid string) (string, []byte, error) {
	var mime string
	var blob []byte
	err := s.db.QueryRow(`SELECT mime_hint, blob FROM uploads WHERE cid=$1`, cid).Scan(&mime, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, apierr.NotFound("upload not found")
	}
	if err != nil {
		return "", nil, err
	}
	return mime, blob, nil
}
