package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/speech-batch/internal/ingest"
)

func TestNormalizeForSpeech(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses whitespace",
			input: "Hello   there\n\nfriend.",
			want:  "Hello there friend.",
		},
		{
			name:  "trims surrounding whitespace",
			input: "  padded text.  ",
			want:  "padded text.",
		},
		{
			name:  "appends missing period",
			input: "no ending here",
			want:  "no ending here.",
		},
		{
			name:  "keeps question mark",
			input: "is this kept?",
			want:  "is this kept?",
		},
		{
			name:  "keeps exclamation mark",
			input: "it is!",
			want:  "it is!",
		},
		{
			name:  "appends after trailing comma",
			input: "a list, of things,",
			want:  "a list, of things,.",
		},
		{
			name:  "normalizes smart quotes",
			input: "“quoted” and ‘single’",
			want:  "\"quoted\" and 'single'.",
		},
		{
			name:  "normalizes dashes and ellipsis",
			input: "pause — then…",
			want:  "pause - then...",
		},
		{
			name:  "empty stays empty",
			input: "   ",
			want:  "",
		},
	}

	normalizer := ingest.NewNormalizer()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, normalizer.NormalizeForSpeech(testCase.input))
		})
	}
}
