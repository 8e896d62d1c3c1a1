// Package jira posts worklog entries to the JIRA Cloud REST API.
package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StartedLayout is the timestamp format JIRA expects in Worklog.Started,
// for example "2025-03-07T08:00:00.000+0800".
const StartedLayout = "2006-01-02T15:04:05.000-0700"

// Worklog is the request body of the add-worklog endpoint.
type Worklog struct {
	TimeSpent string `json:"timeSpent"`
	Comment   Doc    `json:"comment"`
	Started   string `json:"started"`
}

// Doc is an Atlassian Document Format document.
type Doc struct {
	Type    string      `json:"type"`
	Version int         `json:"version"`
	Content []Paragraph `json:"content"`
}

// Paragraph is an ADF paragraph node.
type Paragraph struct {
	Type    string `json:"type"`
	Content []Text `json:"content"`
}

// Text is an ADF text node.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BuildWorklogPayload builds a worklog with one paragraph per comment line.
//
// started is sent as-is (see StartedLayout); timeSpent uses JIRA duration
// notation such as "8h", "60m" or "3d".
func BuildWorklogPayload(started, timeSpent string, comments []string) Worklog {
	paragraphs := make([]Paragraph, 0, len(comments))
	for _, line := range comments {
		paragraphs = append(paragraphs, Paragraph{
			Type:    "paragraph",
			Content: []Text{{Type: "text", Text: line}},
		})
	}
	return Worklog{
		TimeSpent: timeSpent,
		Comment: Doc{
			Type:    "doc",
			Version: 1,
			Content: paragraphs,
		},
		Started: started,
	}
}

// FormatStarted formats t for Worklog.Started.
func FormatStarted(t time.Time) string {
	return t.Format(StartedLayout)
}

// Encode returns the JSON body. Non-ASCII text is kept as UTF-8 and HTML
// characters are not escaped.
func (w Worklog) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode worklog: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Comments returns the comment lines of w, one per paragraph.
func (w Worklog) Comments() []string {
	lines := make([]string, 0, len(w.Comment.Content))
	for _, p := range w.Comment.Content {
		var line string
		for _, t := range p.Content {
			line += t.Text
		}
		lines = append(lines, line)
	}
	return lines
}
