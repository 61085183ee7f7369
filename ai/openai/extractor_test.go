package openai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"valid", `{"topics":[{"topic":"harbour","relevance":9}]}`},
		{"missing key quote", `{"topics":[{topic":"harbour", relevance":9}]}`},
		{"trailing comma", `{"topics":[{"topic":"harbour","relevance":9},]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out analysis
			require.NoError(t, json.Unmarshal([]byte(repairJSON(tt.input)), &out))
			require.Len(t, out.Topics, 1)
			assert.Equal(t, "harbour", out.Topics[0].Topic)
			assert.Equal(t, 9, out.Topics[0].Relevance)
		})
	}
}

func TestRankTopics(t *testing.T) {
	in := []topic{
		{Topic: "City  Council", Relevance: 5},
		{Topic: "harbour", Relevance: 9},
		{Topic: "city council", Relevance: 4},
		{Topic: " ", Relevance: 10},
		{Topic: "fishing", Relevance: 5},
	}

	assert.Equal(t, []string{"harbour", "city council", "fishing"}, rankTopics(in, 5))
	assert.Equal(t, []string{"harbour"}, rankTopics(in, 1))
}

func TestTextHelpers(t *testing.T) {
	assert.Equal(t, "Hello world", scrubString("  Hello,   world! "))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))

	long := strings.Repeat("word ", 10)
	cut := truncateAtSpace(long, 12)
	assert.Equal(t, "word word", cut)
	assert.Equal(t, "short", truncateAtSpace("short", 12))
}

func TestBuildSystemPrompt(t *testing.T) {
	p := buildSystemPrompt(5)
	assert.Contains(t, p, "at most 5 topics")
	assert.Contains(t, p, `"topics"`)
}
