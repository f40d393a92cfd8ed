package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pong-arena/internal/physics"
)

func TestDecodeKnownTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "create pve",
			raw:  `{"type":"createGame","data":{"mode":"pve","username":" alice ","difficulty":"hard"}}`,
			want: CreateGame{Mode: "pve", Username: "alice", Difficulty: "hard"},
		},
		{
			name: "create defaults to pvp",
			raw:  `{"type":"createGame","data":{"username":"alice"}}`,
			want: CreateGame{Mode: "pvp", Username: "alice"},
		},
		{
			name: "join with envelope game id",
			raw:  `{"type":"joinGame","gameId":"g1","data":{"username":"bob"}}`,
			want: JoinGame{GameID: "g1", Username: "bob"},
		},
		{
			name: "spectate",
			raw:  `{"type":"joinGame","data":{"gameId":"g1","username":"eve","spectate":true}}`,
			want: JoinGame{GameID: "g1", Username: "eve", Spectate: true},
		},
		{
			name: "move from envelope ids",
			raw:  `{"type":"playerMove","gameId":"g1","playerId":"p1","data":{"direction":"up"}}`,
			want: PlayerMove{GameID: "g1", PlayerID: "p1", Direction: "up"},
		},
		{
			name: "move without direction stops",
			raw:  `{"type":"playerMove","gameId":"g1","playerId":"p1"}`,
			want: PlayerMove{GameID: "g1", PlayerID: "p1", Direction: "stop"},
		},
		{
			name: "get games",
			raw:  `{"type":"getGames"}`,
			want: GetGames{},
		},
		{
			name: "ping",
			raw:  `{"type":"ping","data":{"timestamp":42}}`,
			want: Ping{Timestamp: 42},
		},
		{
			name: "leave",
			raw:  `{"type":"leaveGame","gameId":"g1","playerId":"p1"}`,
			want: LeaveGame{GameID: "g1", PlayerID: "p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type(), got.Type())
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"missing type", `{"data":{}}`, ErrMalformed},
		{"unknown type", `{"type":"fireLaser"}`, ErrUnknownType},
		{"join without game", `{"type":"joinGame","data":{"username":"bob"}}`, ErrMalformed},
		{"join without name", `{"type":"joinGame","gameId":"g1","data":{"username":"  "}}`, ErrMalformed},
		{"bad direction", `{"type":"playerMove","gameId":"g1","data":{"direction":"left"}}`, ErrMalformed},
		{"data wrong shape", `{"type":"playerMove","gameId":"g1","data":"up"}`, ErrMalformed},
		{"bad mode", `{"type":"createGame","data":{"mode":"tournament","username":"a"}}`, ErrMalformed},
		{"state without game", `{"type":"getGameState"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	raw := make([]byte, MaxMessageSize+1)
	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPlayerMoveDir(t *testing.T) {
	assert.Equal(t, physics.DirUp, PlayerMove{Direction: "up"}.Dir())
	assert.Equal(t, physics.DirDown, PlayerMove{Direction: "down"}.Dir())
	assert.Equal(t, physics.DirStop, PlayerMove{Direction: "stop"}.Dir())
}

func TestEncodeError(t *testing.T) {
	raw, err := Encode(NewError("g1", "not_found", "game not found"))
	require.NoError(t, err)

	var got struct {
		Type   string       `json:"type"`
		GameID string       `json:"gameId"`
		Data   ErrorPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, TypeError, got.Type)
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, "not_found", got.Data.Code)
}
