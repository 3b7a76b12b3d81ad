package coordinator

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/chorusnet/chorus/pkg/types"
)

// ErrValidation marks submissions rejected at ingress. The HTTP layer maps
// it to a 4xx response.
var ErrValidation = errors.New("validation failed")

// minSummarizationChars is the shortest text worth summarizing.
const minSummarizationChars = 50

// languageRe accepts ISO 639-1 codes with an optional region subtag.
var languageRe = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// SubmitRequest is a validated-at-ingress task submission.
type SubmitRequest struct {
	Kind           types.TaskKind
	SourceLanguage string
	TargetLanguage string
	Priority       types.TaskPriority

	// Text is the inline payload for text kinds; Data the uploaded bytes
	// for audio/video/document kinds. At most one is set.
	Text string
	Data []byte

	RequiredWorkerCount int
	MinWorkerCount      int
	MaxWorkerCount      int
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// validateSubmit checks content rules per task kind. maxInputBytes bounds
// uploaded payloads (0 disables the bound).
func validateSubmit(req *SubmitRequest, maxInputBytes int64) error {
	if !types.ValidTaskKind(req.Kind) {
		return validationErr("unknown task type %q", req.Kind)
	}
	if req.SourceLanguage != "" && !languageRe.MatchString(req.SourceLanguage) {
		return validationErr("invalid source language %q", req.SourceLanguage)
	}
	if req.TargetLanguage != "" && !languageRe.MatchString(req.TargetLanguage) {
		return validationErr("invalid target language %q", req.TargetLanguage)
	}
	if maxInputBytes > 0 && int64(len(req.Data)) > maxInputBytes {
		return validationErr("input of %d bytes exceeds limit of %d", len(req.Data), maxInputBytes)
	}
	if req.Priority != "" && !types.ValidPriority(req.Priority) {
		return validationErr("unknown priority %q", req.Priority)
	}

	switch req.Kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		if len(req.Data) == 0 {
			return validationErr("%s requires an uploaded file", req.Kind)
		}
		if req.SourceLanguage == "" {
			return validationErr("%s requires a source language", req.Kind)
		}
	case types.TaskKindTTS:
		if req.Text == "" {
			return validationErr("tts requires non-empty text")
		}
	case types.TaskKindSummarization:
		if len(req.Text) < minSummarizationChars {
			return validationErr("summarization requires at least %d characters of text, got %d",
				minSummarizationChars, len(req.Text))
		}
	case types.TaskKindTextTranslation:
		if req.Text == "" {
			return validationErr("text translation requires non-empty text")
		}
		if req.TargetLanguage == "" {
			return validationErr("translation requires a target language")
		}
	case types.TaskKindDocTranslation:
		if len(req.Data) == 0 {
			return validationErr("document translation requires an uploaded file")
		}
		if req.TargetLanguage == "" {
			return validationErr("translation requires a target language")
		}
	}
	return nil
}
