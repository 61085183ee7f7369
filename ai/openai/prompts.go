package openai

import "fmt"

const topicResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "topics": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "topic": {
            "type": "string",
            "pattern": "^[a-z0-9]+( [a-z0-9]+)*$"
          },
          "relevance": {
            "type": "integer",
            "minimum": 1,
            "maximum": 10
          }
        },
        "required": ["topic", "relevance"],
        "additionalProperties": false
      }
    }
  },
  "required": ["topics"],
  "additionalProperties": false
}`

const topicPromptTemplate = `You will receive the transcript of a spoken recording. Identify what the
recording is about and return the topics as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Return at most %d topics.
- Topic names must be lowercase, 1-4 words, no punctuation.
- Relevance is an integer from 1 (mentioned in passing) to 10 (the recording is mainly about this).
- Prefer concrete subjects (people, places, projects, events) over generic words like "conversation" or "talk".
- Speech recognition makes mistakes. Ignore filler words and obvious mis-hearings.
- If nothing stands out, return "topics": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "so today we're walking through the harbour renovation plans the council approved last week and what it means for the fishing co-op"
Output:
{
  "topics": [
    {"topic":"harbour renovation","relevance":9},
    {"topic":"city council","relevance":6},
    {"topic":"fishing cooperative","relevance":6}
  ]
}

Example (interview, informal):
Input: "yeah my grandmother came over in 1962 and she worked at the textile mill for thirty years"
Output:
{
  "topics": [
    {"topic":"family history","relevance":8},
    {"topic":"immigration","relevance":7},
    {"topic":"textile mill","relevance":7}
  ]
}`

// buildSystemPrompt creates the system prompt with the topic cap embedded.
func buildSystemPrompt(maxTopics int) string {
	return fmt.Sprintf(topicPromptTemplate, topicResponseSchema, maxTopics)
}
