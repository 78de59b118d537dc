package research

import (
	"fmt"
	"strings"
	"time"
)

const schemaPreamble = "Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:"

func todayString(now time.Time) string {
	return now.Format("Mon, Jan 2, 2006")
}

func conversationString(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func clarifyPrompt(now time.Time, conversation []Message) string {
	return fmt.Sprintf(`You are deciding whether the user's request needs clarification before deep research.

Today: %s

Conversation:
%s

Set need_clarification=true only if the research goal is ambiguous or misses key constraints (scope, audience, timeframe, definitions). When it is true, ask one concise question that gathers the most important missing information.

Ask for clarification only when meaningful research is impossible without it.`, todayString(now), conversationString(conversation))
}

const clarifySchema = `{
  "type": "object",
  "properties": {
    "need_clarification": {"type": "boolean", "description": "Whether the user's request requires clarification"},
    "question": {"type": "string", "description": "The question to ask the user, if clarification is needed"}
  },
  "required": ["need_clarification", "question"]
}`

func briefPrompt(now time.Time, conversation []Message) string {
	return fmt.Sprintf(`Turn the user's request into a focused research brief and title.

Today: %s

Conversation:
%s

Write:
1. A precise, specific title (under 100 characters)
2. A research brief of 5-8 sentences covering the core research question, the key dimensions to investigate, the expected scope and depth, and the target audience or use case

Be specific about what must be researched and keep every important detail from the conversation.`, todayString(now), conversationString(conversation))
}

const briefSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "Research title, under 100 characters"},
    "research_brief": {"type": "string", "description": "Research brief guiding the researchers"}
  },
  "required": ["title", "research_brief"]
}`

func researcherPrompt(now time.Time, maxQueries int) string {
	return fmt.Sprintf(`You are a research assistant investigating one topic in depth. Use web search to gather comprehensive information.

Today: %s

RESEARCH GUIDELINES:
- Start with broad searches to understand the topic
- Follow up with specific searches to fill gaps
- Each webSearch call accepts up to %d queries
- Use diverse, specific search terms
- Write down your findings with the source URL of every fact
- Call researchComplete once you have sufficient information

You MUST use web search before calling researchComplete. Research thoroughly, using several queries from different angles.`, todayString(now), maxQueries)
}

const compressPrompt = `You are compressing research findings. Preserve ALL important information, sources and citations.

TASK: Clean up and organize the research findings while keeping everything relevant.

REQUIREMENTS:
1. Keep all factual information verbatim
2. Keep every source citation and URL
3. Organize the information clearly
4. Remove only exact duplicates
5. End with a sources section listing all URLs

Format the output as structured findings with clear sections and complete source citations.`

func supervisorPrompt(now time.Time, maxUnits int, brief string, notes []string) string {
	return fmt.Sprintf(`You are a research supervisor. Analyze the current research state and decide what additional research is needed.

Today: %s
Max research topics per round: %d

CURRENT RESEARCH BRIEF: %s

RESEARCH CONDUCTED SO FAR:
%s

INSTRUCTIONS:
1. Assess whether the current research is comprehensive enough
2. Identify specific gaps or areas that need more investigation
3. If more research is needed, name 1-%d focused research topics
4. Each topic must differ substantially from what has already been researched

Research is expensive. Only request more when it is necessary for a comprehensive answer.`, todayString(now), maxUnits, brief, strings.Join(notes, "\n\n"), maxUnits)
}

func supervisorSchema(maxUnits int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "needs_more_research": {"type": "boolean", "description": "Whether more research is needed"},
    "research_topics": {"type": "array", "items": {"type": "string"}, "maxItems": %d, "description": "Topics to investigate next, empty when no more research is needed"},
    "reasoning": {"type": "string", "description": "The reasoning behind the decision"}
  },
  "required": ["needs_more_research", "research_topics", "reasoning"]
}`, maxUnits)
}

const reportPrompt = `You are writing a comprehensive research report. Produce a well-structured, detailed analysis.

REQUIREMENTS:
1. Use markdown with proper headers (# for the title, ## for sections)
2. Include specific facts, data and insights from the research
3. Reference sources using [Title](URL) format
4. Be comprehensive and detailed
5. Include a "Sources" section at the end
6. Structure the report logically for its content

CITATION RULES:
- Give each unique URL a citation number [1], [2], ...
- End with ### Sources listing all sources
- Number sequentially without gaps`

func reportInput(title, brief string, notes []string) string {
	return fmt.Sprintf(`Create a comprehensive research report:

TITLE: %s

RESEARCH BRIEF: %s

RESEARCH FINDINGS:
%s

Structure the report for the topic. Be thorough and include all relevant information with proper citations.`, title, brief, strings.Join(notes, "\n\n"))
}

func withSchema(prompt, schema string) string {
	return prompt + "\n\n# Response Format:\n\n" + schemaPreamble + schema
}
