package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/identity"
	"github.com/openrooms/orc/internal/orchestrator"
	"github.com/openrooms/orc/internal/stream"
)

func testServer() *Server {
	entities := entity.New()
	streams := stream.New(stream.DefaultConfig())
	h := hub.New(nil)
	identityStore := identity.New(60 * time.Second)
	orch := orchestrator.New(entities, streams, h, entity.OwnerLeaveForbid)

	return NewServer(Deps{
		Identity:        identityStore,
		Entities:        entities,
		Streams:         streams,
		Hub:             h,
		Orch:            orch,
		MaxUploadBytes:  1 << 20,
		HeartbeatMS:     30000,
		OutboundBufSize: 32,
		Capabilities:    []string{"rooms", "dms"},
	}, zap.NewNop(), 6000, 100)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerGuest(t *testing.T, router http.Handler) (token, userID string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/guest", "", guestRequest{DisplayName: "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string      `json:"access_token"`
		User        entity.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken, resp.User.UserID
}

func TestAuthGuestIssuesUsableToken(t *testing.T) {
	router := testServer().Router()
	token, userID := registerGuest(t, router)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, userID)

	rec := doJSON(t, router, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	router := testServer().Router()
	rec := doJSON(t, router, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRouteRejectsBadToken(t *testing.T) {
	router := testServer().Router()
	rec := doJSON(t, router, http.MethodGet, "/users/me", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRoomThenPostAndReadMessage(t *testing.T) {
	router := testServer().Router()
	token, _ := registerGuest(t, router)

	rec := doJSON(t, router, http.MethodPost, "/rooms", token, createRoomRequest{Name: "General"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Room.RoomID)

	rec = doJSON(t, router, http.MethodPost, "/rooms/"+created.Room.RoomID+"/messages", token, postMessageRequest{Text: "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/rooms/"+created.Room.RoomID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed messagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Messages, 1)
	assert.Equal(t, "hello", listed.Messages[0].Text)
}

func TestCreateRoomDuplicateNameReturnsConflict(t *testing.T) {
	router := testServer().Router()
	token, _ := registerGuest(t, router)

	rec := doJSON(t, router, http.MethodPost, "/rooms", token, createRoomRequest{Name: "General"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/rooms", token, createRoomRequest{Name: "General"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNonMemberCannotPostToRoom(t *testing.T) {
	router := testServer().Router()
	ownerToken, _ := registerGuest(t, router)
	otherToken, _ := registerGuest(t, router)

	rec := doJSON(t, router, http.MethodPost, "/rooms", ownerToken, createRoomRequest{Name: "General"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/rooms/"+created.Room.RoomID+"/messages", otherToken, postMessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJoinPublicRoomThenPost(t *testing.T) {
	router := testServer().Router()
	ownerToken, _ := registerGuest(t, router)
	memberToken, _ := registerGuest(t, router)

	rec := doJSON(t, router, http.MethodPost, "/rooms", ownerToken, createRoomRequest{Name: "General"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/rooms/"+created.Room.RoomID+"/join", memberToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/rooms/"+created.Room.RoomID+"/messages", memberToken, postMessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCapabilitiesIsPublic(t *testing.T) {
	router := testServer().Router()
	rec := doJSON(t, router, http.MethodGet, "/meta/capabilities", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadThenFetchMedia(t *testing.T) {
	router := testServer().Router()
	token, _ := registerGuest(t, router)

	req := httptest.NewRequest(http.MethodPost, "/uploads", bytes.NewReader([]byte("hello world")))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, 11, up.Bytes)

	rec = doJSON(t, router, http.MethodGet, "/media/"+up.CID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
}
