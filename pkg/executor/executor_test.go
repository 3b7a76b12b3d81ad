package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/types"
)

func TestEchoReflectsInput(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want func(t *testing.T, res *Result)
	}{
		{
			name: "transcription echoes audio bytes",
			req:  &Request{Kind: types.TaskKindTranscription, Data: []byte("audio payload")},
			want: func(t *testing.T, res *Result) {
				assert.Equal(t, "audio payload", res.Output.Transcript)
				assert.Empty(t, res.Audio)
			},
		},
		{
			name: "video transcription fills transcript",
			req:  &Request{Kind: types.TaskKindVideoTranscription, Data: []byte("video payload")},
			want: func(t *testing.T, res *Result) {
				assert.Equal(t, "video payload", res.Output.Transcript)
			},
		},
		{
			name: "summarization echoes text",
			req:  &Request{Kind: types.TaskKindSummarization, Text: "long article"},
			want: func(t *testing.T, res *Result) {
				assert.Equal(t, "long article", res.Output.Summary)
			},
		},
		{
			name: "translation echoes text",
			req:  &Request{Kind: types.TaskKindTextTranslation, Text: "bonjour"},
			want: func(t *testing.T, res *Result) {
				assert.Equal(t, "bonjour", res.Output.Translated)
			},
		},
		{
			name: "tts returns audio bytes",
			req:  &Request{Kind: types.TaskKindTTS, Text: "say this"},
			want: func(t *testing.T, res *Result) {
				assert.Equal(t, []byte("say this"), res.Audio)
				assert.Empty(t, res.Output.AudioBlob)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&Echo{}).Run(context.Background(), tt.req)
			require.NoError(t, err)
			tt.want(t, res)
		})
	}
}

func TestEchoReportsConfiguredDelay(t *testing.T) {
	res, err := (&Echo{Delay: 3 * time.Second}).Run(context.Background(), &Request{
		Kind: types.TaskKindSummarization,
		Text: "text",
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, res.Elapsed)
}

func TestEchoRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Echo{}).Run(ctx, &Request{Kind: types.TaskKindTTS, Text: "text"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Kinds())

	_, err := reg.Get(types.TaskKindTTS)
	assert.ErrorContains(t, err, "no executor configured")

	reg.Set(types.TaskKindTTS, &Echo{})
	reg.Set(types.TaskKindTranscription, &Echo{})

	exec, err := reg.Get(types.TaskKindTTS)
	require.NoError(t, err)
	assert.NotNil(t, exec)
	assert.ElementsMatch(t, []types.TaskKind{types.TaskKindTTS, types.TaskKindTranscription}, reg.Kinds())
}

func TestFuncAdapter(t *testing.T) {
	exec := Func(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{Output: types.OutputRef{Summary: "from func"}}, nil
	})

	res, err := exec.Run(context.Background(), &Request{Kind: types.TaskKindSummarization})
	require.NoError(t, err)
	assert.Equal(t, "from func", res.Output.Summary)
}

func TestHTTPExecutorRoundtrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/run", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.TaskKindTranscription, req.Kind)
		assert.Equal(t, "en", req.SourceLanguage)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"transcript": "heard: " + string(req.Data),
		})
	}))
	t.Cleanup(srv.Close)

	res, err := NewHTTPExecutor(srv.URL).Run(context.Background(), &Request{
		Kind:           types.TaskKindTranscription,
		SourceLanguage: "en",
		Data:           []byte("audio"),
	})
	require.NoError(t, err)
	assert.Equal(t, "heard: audio", res.Output.Transcript)
	assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
}

func TestHTTPExecutorBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPExecutor(srv.URL).Run(context.Background(), &Request{
		Kind: types.TaskKindTTS,
		Text: "text",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPExecutorUnreachable(t *testing.T) {
	_, err := NewHTTPExecutor("http://127.0.0.1:1").Run(context.Background(), &Request{
		Kind: types.TaskKindTTS,
		Text: "text",
	})
	assert.ErrorContains(t, err, "unreachable")
}
