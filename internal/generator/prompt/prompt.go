// Package prompt renders the chat prompt sent to remote generators.
package prompt

import (
	"strings"

	"movierag/internal/domain"
)

// System frames every remote generation request.
const System = "You are an expert movie recommendation system. Based on the user's query and the provided movie information, provide personalized recommendations."

const guidelines = `Please provide recommendations following these guidelines:
1. Analyze the user's preferences and query intent
2. Consider genre, rating, year, runtime and certificate
3. Provide 3-5 specific movie recommendations
4. For each recommendation include the title, a brief reason it matches and its key features
5. If the query is vague, ask for clarification

Format each recommendation as:
**N. [Movie Title]**
- Why: [Brief explanation]
- Genre: [Genres] | Rating: [X.X/10] | Runtime: [X min] | Certificate: [PG/R/etc]`

// User renders the retrieved context and the query.
func User(req domain.GenerationRequest) string {
	var b strings.Builder
	b.WriteString("Context Information:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\nUser Query: ")
	b.WriteString(req.Query)
	b.WriteString("\n\n")
	b.WriteString(guidelines)
	b.WriteString("\n\nResponse:")
	return b.String()
}
