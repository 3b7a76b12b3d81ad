package coordinator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chorusnet/chorus/pkg/types"
)

func TestValidateSubmit(t *testing.T) {
	audio := []byte("fake audio payload")
	longText := strings.Repeat("words and more words. ", 10)

	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr bool
	}{
		{
			name: "valid transcription",
			req: SubmitRequest{
				Kind:           types.TaskKindTranscription,
				SourceLanguage: "en",
				Data:           audio,
			},
		},
		{
			name: "transcription without file",
			req: SubmitRequest{
				Kind:           types.TaskKindTranscription,
				SourceLanguage: "en",
			},
			wantErr: true,
		},
		{
			name: "transcription without source language",
			req: SubmitRequest{
				Kind: types.TaskKindTranscription,
				Data: audio,
			},
			wantErr: true,
		},
		{
			name: "valid tts",
			req: SubmitRequest{
				Kind: types.TaskKindTTS,
				Text: "read this aloud",
			},
		},
		{
			name:    "tts without text",
			req:     SubmitRequest{Kind: types.TaskKindTTS},
			wantErr: true,
		},
		{
			name: "valid summarization",
			req: SubmitRequest{
				Kind: types.TaskKindSummarization,
				Text: longText,
			},
		},
		{
			name: "summarization below minimum length",
			req: SubmitRequest{
				Kind: types.TaskKindSummarization,
				Text: "too short",
			},
			wantErr: true,
		},
		{
			name: "valid text translation",
			req: SubmitRequest{
				Kind:           types.TaskKindTextTranslation,
				Text:           "bonjour",
				SourceLanguage: "fr",
				TargetLanguage: "en",
			},
		},
		{
			name: "text translation without target language",
			req: SubmitRequest{
				Kind: types.TaskKindTextTranslation,
				Text: "bonjour",
			},
			wantErr: true,
		},
		{
			name: "valid document translation",
			req: SubmitRequest{
				Kind:           types.TaskKindDocTranslation,
				Data:           []byte("document bytes"),
				TargetLanguage: "de",
			},
		},
		{
			name: "document translation without file",
			req: SubmitRequest{
				Kind:           types.TaskKindDocTranslation,
				TargetLanguage: "de",
			},
			wantErr: true,
		},
		{
			name: "valid video transcription",
			req: SubmitRequest{
				Kind:           types.TaskKindVideoTranscription,
				SourceLanguage: "en",
				Data:           audio,
			},
		},
		{
			name:    "unknown kind",
			req:     SubmitRequest{Kind: "mining"},
			wantErr: true,
		},
		{
			name: "malformed source language",
			req: SubmitRequest{
				Kind:           types.TaskKindTranscription,
				SourceLanguage: "english",
				Data:           audio,
			},
			wantErr: true,
		},
		{
			name: "region subtag accepted",
			req: SubmitRequest{
				Kind:           types.TaskKindTranscription,
				SourceLanguage: "pt-BR",
				Data:           audio,
			},
		},
		{
			name: "unknown priority",
			req: SubmitRequest{
				Kind:     types.TaskKindTTS,
				Text:     "hello",
				Priority: "whenever",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSubmit(&tt.req, 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSubmitSizeLimit(t *testing.T) {
	req := SubmitRequest{
		Kind:           types.TaskKindTranscription,
		SourceLanguage: "en",
		Data:           make([]byte, 2048),
	}

	assert.ErrorIs(t, validateSubmit(&req, 1024), ErrValidation)
	assert.NoError(t, validateSubmit(&req, 4096))
	// Zero disables the bound.
	assert.NoError(t, validateSubmit(&req, 0))
}
