// Package llm builds curation prompts shared by the generative-service clients.
package llm

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

const schemaExample = `{
  "insights": [
    {
      "title": "Brief title (max 80 chars)",
      "summary": "Concise summary of the insight (max 300 chars)"
    }
  ]
}`

// BuildPrompt renders the curation instructions for req.
func BuildPrompt(req crawler.CurationRequest) Prompt {
	topic := strings.TrimSpace(req.TopicName)
	if topic == "" {
		topic = "the selected topic"
	}

	system := fmt.Sprintf(
		"You are an AI curator that extracts insights from web content. "+
			"Your task is to analyze content and create concise, valuable insights related to %q.",
		topic,
	)
	if desc := strings.TrimSpace(req.TopicDescription); desc != "" {
		system += " Topic description: " + desc
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Analyze this content from %s and extract 1-2 key insights related to %s.\n\n", req.SourceURL, topic)
	user.WriteString("Content:\n")
	user.WriteString(req.Text)
	user.WriteString("\n\nProvide your response in this JSON format:\n")
	user.WriteString(schemaExample)
	user.WriteString("\n\nOnly include truly valuable, actionable insights. ")
	user.WriteString("If the content is not relevant or doesn't contain useful insights, return an empty insights array.")

	return Prompt{System: system, User: user.String()}
}

// Snippet trims an upstream error body for logging.
func Snippet(body []byte, limit int) string {
	s := strings.TrimSpace(string(body))
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return s
}
