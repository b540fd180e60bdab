package retell

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCreateWebCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/create-web-call", r.URL.Path)
		require.Equal(t, "Bearer rk", r.Header.Get("Authorization"))

		var body WebCallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "agent-student", body.AgentID)
		require.Equal(t, "student", body.Metadata["user_type"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"call_id":      "rc_1",
			"access_token": "tok",
			"agent_id":     body.AgentID,
			"call_status":  "registered",
		})
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "rk", BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	call, err := client.CreateWebCall(t.Context(), WebCallRequest{
		AgentID:  "agent-student",
		Metadata: map[string]any{"user_type": "student"},
	})
	require.NoError(t, err)
	require.Equal(t, "rc_1", call.CallID)
	require.Equal(t, "tok", call.AccessToken)
}

func TestCreateWebCallProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad agent", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "rk", BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.CreateWebCall(t.Context(), WebCallRequest{AgentID: "x"})
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"call_id":"c1"}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	require.NoError(t, VerifySignature("s3cret", body, sig))
	require.ErrorIs(t, VerifySignature("s3cret", body, "deadbeef"), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignature("s3cret", body, "not-hex"), ErrInvalidSignature)
	require.NoError(t, VerifySignature("", body, ""))
}
