package model

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsAccessors(t *testing.T) {
	p := Params{
		"username": "  alice ",
		"count":    float64(7),
		"limit":    "12",
		"bogus":    "x12",
		"flag":     true,
		"empty":    "   ",
	}

	assert.Equal(t, "alice", p.String("username"))
	assert.Equal(t, "7", p.String("count"))
	assert.Equal(t, 7, p.Int("count", 1))
	assert.Equal(t, 12, p.Int("limit", 1))
	assert.Equal(t, 3, p.Int("bogus", 3))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.Equal(t, "true", p.String("flag"))
	assert.False(t, p.Has("empty"))
	assert.Equal(t, "fallback", p.StringOr("empty", "fallback"))
}

func TestParamsDecode(t *testing.T) {
	p := Params{"routers": []any{map[string]any{"id": "r1", "password": MaskSentinel}}}

	var patches []ProfilePatch
	require.NoError(t, p.Decode("routers", &patches))
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].ID)
	assert.Equal(t, "r1", *patches[0].ID)
	assert.Nil(t, patches[0].Name)
	assert.Error(t, p.Decode("missing", &patches))
}

func TestActionResultJSON(t *testing.T) {
	ok := Succeed("done", map[string]any{"count": 2})
	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"message":"done","count":2}`, string(raw))

	bad := Fail(http.StatusBadRequest, "Username required")
	raw, err = json.Marshal(bad)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"Username required"}`, string(raw))
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Nil(t, bad.Payload)
}

func TestFailNormalisesStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, Fail(http.StatusOK, "x").Status)
}
