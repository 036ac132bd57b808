package usecase

import "strings"

// Generation parameters for the chat-completion call.
const (
	ChatTemperature = 0.7
	ChatMaxTokens   = 500
)

// SystemPrompt frames the model as the matchmaker writing the explanation.
const SystemPrompt = "You are an experienced, warm and perceptive matchmaker at a curated " +
	"introductions service. You explain to each member why their match was chosen, " +
	"grounding every point in the profiles you are given. You always answer with valid JSON only."

const userPromptTemplate = `Two members of our matchmaking service have been matched. Using only the profile information below, explain why they are compatible.

MEMBER 1 PROFILE:
{{MEMBER1}}

MEMBER 2 PROFILE:
{{MEMBER2}}

Write two separate sets of explanations:
- "member1Explanation": exactly 5 points addressed to Member 1 about Member 2, written in a tone and framing suited to Member 1's gender.
- "member2Explanation": exactly 5 points addressed to Member 2 about Member 1, written in a tone and framing suited to Member 2's gender.

Each point is an object with a short "header" (max 6 words) and an "explanation" (2-3 sentences) that references concrete shared values, interests or complementary traits. Do not invent facts that are not in the profiles.

Respond with JSON only, no markdown, in exactly this shape:
{
  "member1Explanation": [{"header": "...", "explanation": "..."}],
  "member2Explanation": [{"header": "...", "explanation": "..."}]
}`

// BuildPrompt embeds both formatted profiles into the instruction template.
func BuildPrompt(member1, member2 string) string {
	r := strings.NewReplacer("{{MEMBER1}}", member1, "{{MEMBER2}}", member2)
	return r.Replace(userPromptTemplate)
}
