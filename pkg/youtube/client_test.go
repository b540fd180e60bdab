package youtube

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT12M30S": 12*time.Minute + 30*time.Second,
		"PT1H":     time.Hour,
		"PT45S":    45 * time.Second,
		"P1DT2M":   24*time.Hour + 2*time.Minute,
	}
	for input, want := range cases {
		got, err := ParseDuration(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseDuration("12 minutes")
	require.Error(t, err)
}

func TestSearchVideosLoadsDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.Equal(t, "key", r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/search":
			require.Equal(t, "video", r.URL.Query().Get("type"))
			require.Equal(t, "medium", r.URL.Query().Get("videoDuration"))
			_, _ = w.Write([]byte(`{"items":[{"id":{"kind":"youtube#video","videoId":"abc"}}]}`))
		case "/videos":
			require.Equal(t, "abc", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"items":[{
				"id":"abc",
				"snippet":{"title":"Fractions explained","channelTitle":"Khan Academy","thumbnails":{"high":{"url":"https://img/abc.jpg"}}},
				"contentDetails":{"duration":"PT9M5S"},
				"statistics":{"viewCount":"1000","likeCount":"30"}
			}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := New(t.Context(), Config{APIKey: "key", Endpoint: server.URL + "/"}, zerolog.Nop())
	require.NoError(t, err)

	videos, err := client.SearchVideos(t.Context(), "fractions class 6", 10)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	require.Equal(t, "Khan Academy", videos[0].ChannelTitle)
	require.Equal(t, 9*time.Minute+5*time.Second, videos[0].Duration)
	require.EqualValues(t, 30, videos[0].LikeCount)
	require.Equal(t, "https://www.youtube.com/watch?v=abc", videos[0].URL)
}
