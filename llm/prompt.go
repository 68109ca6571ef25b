package llm

import (
	"fmt"
	"strings"
)

// chartSpecInstructions tells the model how to emit a chart specification
// alongside its prose answer. The resolver depends on this exact envelope: a
// ```json fenced object with a type and column references.
const chartSpecInstructions = "If the user's query requests a chart or visualization, " +
	"please output a JSON chart specification after your answer. " +
	"The JSON should be delimited by triple backticks and 'json', and include: " +
	"type (bar, pie, line, doughnut, scatter), x (column for x-axis or labels), " +
	"y (column for y-axis or values), labels (for legend), and any other relevant options. " +
	"Example:\n" +
	"```json\n" +
	"{\n  \"type\": \"bar\", \"x\": \"Month\", \"y\": \"Sales\", \"labels\": [\"Jan\", \"Feb\", \"Mar\"] }\n" +
	"```\n" +
	"If no chart is needed, do not output any JSON.\n"

// HistoryEntry is one prior query/response pair carried into the next request.
type HistoryEntry struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// BuildAnalyzeMessages assembles the chat messages for an analyze request:
// prior history, then the user query with a dataset preview and the chart-spec
// instructions naming the available columns.
func BuildAnalyzeMessages(query, preview string, columns []string, history []HistoryEntry) []Message {
	messages := make([]Message, 0, 2*len(history)+1)
	for _, h := range history {
		if h.Query != "" {
			messages = append(messages, Message{Role: "user", Content: h.Query})
		}
		if h.Response != "" {
			messages = append(messages, Message{Role: "assistant", Content: h.Response})
		}
	}

	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nFile preview (first rows):\n")
	b.WriteString(preview)
	b.WriteString("\n\n")
	b.WriteString(chartSpecInstructions)
	fmt.Fprintf(&b, "\nThe columns available are: [%s]", strings.Join(columns, ", "))

	messages = append(messages, Message{Role: "user", Content: b.String()})
	return messages
}
