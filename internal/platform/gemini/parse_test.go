package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/showhn-judge/internal/judge"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare array", `[{"tier":"skip"}]`, `[{"tier":"skip"}]`},
		{"fenced", "```json\n[{\"tier\":\"skip\"}]\n```", `[{"tier":"skip"}]`},
		{"fence without language", "```\n{\"tier\":\"skip\"}\n```", `{"tier":"skip"}`},
		{"leading prose", "Here you go:\n[{\"tier\":\"skip\"}]", `[{"tier":"skip"}]`},
		{"trailing prose", `{"tier":"skip"} hope that helps`, `{"tier":"skip"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestParseBatchResponse(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		raws, err := parseBatchResponse(`[{"subject_id":"a","tier":"strong"}]`)
		require.NoError(t, err)
		require.Len(t, raws, 1)
		assert.Equal(t, "a", raws[0].SubjectID)
	})

	t.Run("verdicts wrapper object", func(t *testing.T) {
		raws, err := parseBatchResponse(`{"verdicts":[{"subject_id":"a","tier":"strong"}]}`)
		require.NoError(t, err)
		require.Len(t, raws, 1)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseBatchResponse("not json at all")
		assert.ErrorIs(t, err, judge.ErrInvalidResponse)
	})
}

func TestParseSingleResponse(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		raw, err := parseSingleResponse(`{"tier":"rough"}`)
		require.NoError(t, err)
		assert.Equal(t, "rough", raw.Tier)
	})

	t.Run("one-element array", func(t *testing.T) {
		raw, err := parseSingleResponse(`[{"tier":"rough"}]`)
		require.NoError(t, err)
		assert.Equal(t, "rough", raw.Tier)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseSingleResponse("nope")
		assert.ErrorIs(t, err, judge.ErrInvalidResponse)
	})
}
