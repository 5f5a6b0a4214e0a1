package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxPieceSize bounds the transcript slice sent per completion.
const maxPieceSize = 6000

const topicSystemPrompt = `Analyze this transcript and identify:
1. Subject area (e.g., physics, chemistry, history)
2. Specific topics covered (3-5 main topics)
3. Key technical terms that might be mistranscribed
4. Context type (university lecture, interview, etc.)

Respond in this format:
SUBJECT: [subject]
TOPICS: [comma-separated]
KEY_TERMS: [comma-separated]
CONTEXT: [context type]`

const structureSystemPrompt = `Analyze this lecture transcript and identify:
1. Overall subject and suggested lecture title
2. Main topics/sections in order
3. Key terminology introduced

Respond in this format:
TITLE: [suggested title]
SUBJECT: [subject]
TOPICS:
1. [topic 1]
2. [topic 2]
...
KEY_TERMS: [comma-separated]`

const notesFormat = `Use this EXACT format for each section:

## [Topic Name]

### Key Concepts
- **Concept**: Clear explanation

### Definitions
- **Term**: Definition

### Formulas/Equations (if any)
- Equation with explanation

### Examples
- Examples from the lecture

### Student Q&A (if present)
- **Q**: Question
- **A**: Answer

Extract ALL important information. Use LaTeX for math. Output ONLY formatted notes.`

var titlePattern = regexp.MustCompile(`TITLE:\s*(.+)`)

const defaultTitle = "Lecture Notes"

// DetectTopic identifies the subject area from a transcript sample. The
// result conditions the cleanup pass on domain terminology.
func (s *Service) DetectTopic(ctx context.Context, transcript string) (string, error) {
	sample := head(transcript, 3000)
	return s.llm.Generate(ctx, topicSystemPrompt, "Analyze:\n\n"+sample, 0.2)
}

// CleanTranscript fixes transcription errors piece by piece, guided by the
// topic analysis.
func (s *Service) CleanTranscript(ctx context.Context, transcript, topicAnalysis string) (string, error) {
	systemPrompt := fmt.Sprintf(`You are cleaning up an audio transcript. Context:

%s

Tasks:
1. Fix transcription errors, especially technical terms
2. Remove gibberish/garbled text
3. Improve punctuation and sentence structure
4. Keep conversational style
5. Preserve original meaning

Output ONLY the cleaned transcript.`, topicAnalysis)

	var cleaned []string
	for _, piece := range splitText(transcript, maxPieceSize) {
		out, err := s.llm.Generate(ctx, systemPrompt, "Clean:\n\n"+piece, 0.3)
		if err != nil {
			return "", err
		}
		cleaned = append(cleaned, out)
	}
	return strings.Join(cleaned, "\n\n"), nil
}

// GenerateNotes produces structured markdown notes: a structure analysis
// first, then per-piece notes in a fixed section format, then a closing
// summary. The returned title comes from the structure analysis.
func (s *Service) GenerateNotes(ctx context.Context, transcript string) (string, string, error) {
	structure, err := s.llm.Generate(ctx, structureSystemPrompt,
		"Analyze:\n\n"+head(transcript, 5000), 0.2)
	if err != nil {
		return "", "", err
	}

	title := defaultTitle
	if match := titlePattern.FindStringSubmatch(structure); match != nil {
		title = strings.TrimSpace(match[1])
	}

	notesPrompt := fmt.Sprintf(`Create structured class notes from this lecture transcript.

Structure detected:
%s

%s`, structure, notesFormat)

	var notesPieces []string
	for _, piece := range splitText(transcript, maxPieceSize) {
		out, err := s.llm.Generate(ctx, notesPrompt, "Convert to notes:\n\n"+piece, 0.3)
		if err != nil {
			return "", "", err
		}
		notesPieces = append(notesPieces, out)
	}
	combined := strings.Join(notesPieces, "\n\n")

	summaryPrompt := fmt.Sprintf(`Based on these lecture notes, create a summary:

%s

Create a "## Summary" section with:
- 5-7 bullet points of main takeaways
- Key formulas to remember
- Important concepts

Output ONLY the summary section.`, head(combined, 8000))

	summary, err := s.llm.Generate(ctx, summaryPrompt, "Create summary.", 0.3)
	if err != nil {
		return "", "", err
	}

	notes := fmt.Sprintf("# %s\n\n%s\n\n%s", title, combined, summary)
	return title, notes, nil
}

// splitText cuts the text into pieces of at most size bytes, never splitting
// a rune across pieces.
func splitText(text string, size int) []string {
	if text == "" {
		return []string{""}
	}
	var pieces []string
	for start := 0; start < len(text); {
		end := runeCut(text, start+size)
		if end <= start {
			// Only reachable on invalid UTF-8; fall back to a byte cut.
			end = start + size
			if end > len(text) {
				end = len(text)
			}
		}
		pieces = append(pieces, text[start:end])
		start = end
	}
	return pieces
}

func head(text string, n int) string {
	return text[:runeCut(text, n)]
}

// runeCut returns n backed up to the nearest rune boundary at or before it.
func runeCut(text string, n int) int {
	if n >= len(text) {
		return len(text)
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return n
}
