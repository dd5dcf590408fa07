// Package chunk implements Stage 0: splitting a normalized document into an
// ordered sequence of sentence-windowed Chunk values, each carrying a stable
// id, section path and sentence-id range. No network or LLM calls are made
// here; splitting is purely deterministic so re-running a build is stable.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

// sentenceBoundary approximates a language-aware sentence splitter: break
// after ., !, ?, or a CJK full-stop/question/exclamation. Cheap and
// deterministic on purpose; chunk ids must be stable across re-runs, so no
// model call belongs here.
var sentenceBoundary = regexp.MustCompile(`([.!?。！？])\s*`)

// headingPattern recognizes markdown ATX headings to build the section tree.
var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// Section is one node of the flattened heading tree paired with the body
// text that falls under it (before any child heading).
type section struct {
	path []string
	body string
}

// Split breaks a normalized document into sentences, carrying a document-wide
// monotonic sequence number and the section path active at each sentence.
func Split(text string) []graphmodel.Sentence {
	sections := splitSections(text)
	var out []graphmodel.Sentence
	seq := 0
	cursor := 0
	for _, sec := range sections {
		for _, raw := range splitSentences(sec.body) {
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" {
				continue
			}
			offset := cursor
			if idx := strings.Index(text[cursor:], trimmed); idx >= 0 {
				offset = cursor + idx
				cursor = offset + len(trimmed)
			}
			out = append(out, graphmodel.Sentence{
				ID:      fmt.Sprintf("s%d", seq),
				Seq:     seq,
				Text:    trimmed,
				Section: sec.path,
				Offset:  offset,
			})
			seq++
		}
	}
	return out
}

// splitSections walks ATX headings top to bottom, returning one section per
// heading transition (accumulating the root→leaf path). A document with no
// headings yields one section with an empty path, per the chunker's
// no-headings edge case.
func splitSections(text string) []section {
	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []section{{path: nil, body: text}}
	}
	var stack []string
	var out []section
	prevEnd := 0
	prevPath := []string(nil)
	for i, m := range matches {
		start := m[0]
		if i == 0 && start > 0 {
			out = append(out, section{path: nil, body: text[:start]})
		} else if i > 0 {
			out = append(out, section{path: append([]string(nil), prevPath...), body: text[prevEnd:start]})
		}
		level := len(text[m[2]:m[3]])
		title := strings.TrimSpace(text[m[4]:m[5]])
		if level <= len(stack) {
			stack = stack[:level-1]
		}
		stack = append(stack, title)
		prevPath = append([]string(nil), stack...)
		headingEnd := m[1]
		prevEnd = headingEnd
	}
	out = append(out, section{path: append([]string(nil), prevPath...), body: text[prevEnd:]})
	return out
}

func splitSentences(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	loc := sentenceBoundary.FindAllStringIndex(body, -1)
	if len(loc) == 0 {
		return []string{body}
	}
	var out []string
	start := 0
	for _, l := range loc {
		out = append(out, body[start:l[1]])
		start = l[1]
	}
	if start < len(body) {
		out = append(out, body[start:])
	}
	return out
}

// Window computes chunks from sentences using the configured window size,
// stride and character cap. A sentence alone exceeding maxChars becomes its
// own single-sentence chunk; a document with fewer sentences than the window
// produces one chunk containing all of them.
func Window(docID string, sentences []graphmodel.Sentence, cfg config.ChunkingConfig, buildVersion string) []graphmodel.Chunk {
	if len(sentences) == 0 {
		return nil
	}
	w := cfg.WindowSentences
	if w <= 0 {
		w = 4
	}
	stride := cfg.Stride
	if stride <= 0 {
		stride = 2
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 1200
	}

	var chunks []graphmodel.Chunk
	for start := 0; start < len(sentences); start += stride {
		end := start + w
		if end > len(sentences) {
			end = len(sentences)
		}
		group := capByChars(sentences[start:end], maxChars)
		chunks = append(chunks, buildChunk(docID, sentences, start, start+len(group), buildVersion))
		if end >= len(sentences) {
			break
		}
	}
	return chunks
}

// capByChars trims a sentence group so its combined length stays within
// maxChars; a single sentence already over the cap is kept alone.
func capByChars(group []graphmodel.Sentence, maxChars int) []graphmodel.Sentence {
	if len(group) <= 1 {
		return group
	}
	total := 0
	for i, s := range group {
		total += len(s.Text)
		if total > maxChars && i > 0 {
			return group[:i]
		}
	}
	return group
}

func buildChunk(docID string, sentences []graphmodel.Sentence, start, end int, buildVersion string) graphmodel.Chunk {
	group := sentences[start:end]
	var texts []string
	var ids []string
	for _, s := range group {
		texts = append(texts, s.Text)
		ids = append(ids, s.ID)
	}
	var section []string
	if len(group) > 0 {
		section = group[0].Section
	}
	id := chunkID(docID, start, end, buildVersion)
	return graphmodel.Chunk{
		ID:           id,
		DocID:        docID,
		Text:         strings.Join(texts, " "),
		ResolvedText: strings.Join(texts, " "),
		SectionPath:  section,
		SentenceIDs:  ids,
		WindowStart:  start,
		WindowEnd:    end,
		BuildVersion: buildVersion,
	}
}

func chunkID(docID string, start, end int, buildVersion string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s", docID, start, end, buildVersion)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// DocumentID derives a stable content-hash ID for a document from its raw
// text, so re-ingesting identical content resolves to the same Document.ID
// across builds.
func DocumentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:32]
}
