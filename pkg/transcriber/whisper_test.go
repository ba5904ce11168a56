package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o644))
	return path
}

func TestWhisperClient_Transcribe(t *testing.T) {
	var gotModel, gotLanguage, gotDevice string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotDevice = r.FormValue("device")

		_, _, err := r.FormFile("audio")
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello world",
			"language": "ja",
			"segments": [
				{"start": 0.0, "end": 4.5, "text": "hello"},
				{"start": 4.5, "end": 9.8, "text": "world"}
			]
		}`))
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL)
	result, err := wc.Transcribe(context.Background(), writeTempAudio(t), Options{
		Language:  "ja",
		ModelSize: "base",
		Device:    "cpu",
	})
	require.NoError(t, err)

	require.Equal(t, "base", gotModel)
	require.Equal(t, "ja", gotLanguage)
	require.Equal(t, "cpu", gotDevice)

	require.Len(t, result.Segments, 2)
	require.Equal(t, "hello", result.Segments[0].Text)
	require.Equal(t, 4.5, result.Segments[1].Start)
	// duration 缺省时用最后一段的结束时间兜底
	require.Equal(t, 9.8, result.Duration)
}

func TestWhisperClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL)
	_, err := wc.Transcribe(context.Background(), writeTempAudio(t), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestWhisperClient_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wc := NewWhisperClient(srv.URL)
	_, err := wc.Transcribe(ctx, writeTempAudio(t), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWhisperClient_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL)
	require.True(t, wc.IsAvailable(context.Background()))

	srv.Close()
	require.False(t, wc.IsAvailable(context.Background()))
}
