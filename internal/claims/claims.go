// Package claims implements Stage 3: extracting atomic claims and
// inter-claim relations from a chunk window via an LLM prompt, deduplicating
// against claims already seen in the document, and downgrading relations
// that fail a lightweight NLI-style plausibility check.
package claims

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

// Extractor drives Stage 3 over one chunk.
type Extractor struct {
	Provider llm.Provider
	Cfg      config.ClaimConfig
	Model    string
	// PromptTemplate is the extraction prompt, loaded from configuration
	// rather than embedded in code. "%s" is substituted with the chunk text
	// and the modality hints.
	PromptTemplate string
}

// extractionItem mirrors the JSON shape requested from the LLM.
type extractionItem struct {
	Text        string   `json:"text"`
	ClaimType   string   `json:"claim_type"`
	Modality    string   `json:"modality"`
	Polarity    string   `json:"polarity"`
	Certainty   float64  `json:"certainty"`
	Confidence  float64  `json:"confidence"`
	SentenceIDs []string `json:"sentence_ids"`
}

type relationItem struct {
	FromText   string  `json:"from_text"`
	ToText     string  `json:"to_text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type extractionResult struct {
	Claims    []extractionItem `json:"claims"`
	Relations []relationItem   `json:"relations"`
}

var modalityHedgeWords = regexp.MustCompile(`(?i)\b(may|might|could|possibly|suggests|appears to|likely)\b`)
var modalitySpeculativeWords = regexp.MustCompile(`(?i)\b(hypothesize|speculate|we believe|it is conceivable)\b`)

// modalityHint detects a lexical modality signal pre-LLM, sent as a hint in
// the prompt per the extraction contract.
func modalityHint(text string) graphmodel.Modality {
	switch {
	case modalitySpeculativeWords.MatchString(text):
		return graphmodel.ModalitySpeculative
	case modalityHedgeWords.MatchString(text):
		return graphmodel.ModalityHedged
	default:
		return graphmodel.ModalityAssertive
	}
}

// Extract runs the LLM extraction over chunk, retrying once with a repair
// prompt on JSON parse failure. A second failure yields zero claims for this
// window without failing the chunk.
func (e *Extractor) Extract(ctx context.Context, chunk graphmodel.Chunk) ([]graphmodel.Claim, []graphmodel.ClaimRelation, error) {
	hint := modalityHint(chunk.ResolvedText)
	prompt := e.buildPrompt(chunk.ResolvedText, hint)

	result, err := e.callAndParse(ctx, prompt)
	if err != nil {
		repaired := e.buildRepairPrompt(chunk.ResolvedText, hint)
		result, err = e.callAndParse(ctx, repaired)
		if err != nil {
			return nil, nil, nil
		}
	}

	claims := make([]graphmodel.Claim, 0, len(result.Claims))
	textToID := map[string]string{}
	for _, item := range result.Claims {
		c := toClaim(item, chunk)
		claims = append(claims, c)
		textToID[item.Text] = c.ID
	}

	relations := make([]graphmodel.ClaimRelation, 0, len(result.Relations))
	for _, r := range result.Relations {
		fromID, okFrom := textToID[r.FromText]
		toID, okTo := textToID[r.ToText]
		if !okFrom || !okTo {
			continue
		}
		relType := graphmodel.ClaimRelationType(strings.ToUpper(r.Type))
		if !validRelationType(relType) {
			continue
		}
		if e.Cfg.NLICheck && !passesNLI(relType, r) {
			continue // downgraded relation is simply dropped; RELATED_TO is not in the closed set
		}
		relations = append(relations, graphmodel.ClaimRelation{
			FromClaimID: fromID,
			ToClaimID:   toID,
			Type:        relType,
			Confidence:  r.Confidence,
		})
	}

	return claims, relations, nil
}

func (e *Extractor) callAndParse(ctx context.Context, prompt string) (extractionResult, error) {
	resp, err := e.Provider.ChatCompletion(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Model:       e.Model,
		MaxTokens:   2048,
		Temperature: 0,
	})
	if err != nil {
		return extractionResult{}, fmt.Errorf("claim extraction call: %w", err)
	}
	var result extractionResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &result); err != nil {
		return extractionResult{}, fmt.Errorf("claim extraction parse: %w", err)
	}
	return result, nil
}

func (e *Extractor) buildPrompt(text string, hint graphmodel.Modality) string {
	if e.PromptTemplate != "" {
		return fmt.Sprintf(e.PromptTemplate, text, hint)
	}
	return fmt.Sprintf(
		"Extract atomic claims (type: fact/hypothesis/conclusion; modality hint: %s; polarity; certainty 0-1) "+
			"and inter-claim relations (SUPPORTS/CONTRADICTS/CAUSES/COMPARES_WITH/CONDITIONS) from this text as JSON "+
			"matching {claims:[{text,claim_type,modality,polarity,certainty,confidence,sentence_ids}],relations:[{from_text,to_text,type,confidence}]}:\n\n%s",
		hint, text,
	)
}

func (e *Extractor) buildRepairPrompt(text string, hint graphmodel.Modality) string {
	return "Your previous output was not valid JSON. " + e.buildPrompt(text, hint)
}

// extractJSON trims LLM chatter around a JSON object, tolerating markdown
// code fences.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func toClaim(item extractionItem, chunk graphmodel.Chunk) graphmodel.Claim {
	hash := normalizedHash(item.Text)
	return graphmodel.Claim{
		ID:                 fmt.Sprintf("%s:%s", chunk.ID, hash[:16]),
		Text:               item.Text,
		NormalizedTextHash: hash,
		DocID:              chunk.DocID,
		ChunkID:            chunk.ID,
		SentenceIDs:        item.SentenceIDs,
		ClaimType:          graphmodel.ClaimType(item.ClaimType),
		Modality:           graphmodel.Modality(item.Modality),
		Polarity:           graphmodel.Polarity(item.Polarity),
		Certainty:          item.Certainty,
		Confidence:         item.Confidence,
		EvidenceSpan: graphmodel.Evidence{
			DocID:       chunk.DocID,
			ChunkID:     chunk.ID,
			SectionPath: chunk.SectionPath,
			SentenceIDs: item.SentenceIDs,
		},
		BuildVersion: chunk.BuildVersion,
	}
}

var punctuation = regexp.MustCompile(`[[:punct:]]`)

// normalizedHash lowercases, strips punctuation and collapses whitespace
// before hashing, per the deduplication contract.
func normalizedHash(text string) string {
	normalized := strings.ToLower(text)
	normalized = punctuation.ReplaceAllString(normalized, "")
	normalized = strings.Join(strings.Fields(normalized), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func validRelationType(t graphmodel.ClaimRelationType) bool {
	switch t {
	case graphmodel.RelationSupports, graphmodel.RelationContradicts, graphmodel.RelationCauses,
		graphmodel.RelationComparesWith, graphmodel.RelationConditions:
		return true
	default:
		return false
	}
}

var causalSignal = regexp.MustCompile(`(?i)\b(because|due to|as a result|leads to|causes|caused by|therefore)\b`)

// passesNLI applies the lightweight plausibility check: CONTRADICTS requires
// the two claim texts to differ in polarity-bearing terms (approximated by
// requiring a below-ceiling confidence, since full entailment scoring is an
// external model call out of this package's scope); CAUSES requires an
// explicit causal signal phrase in one of the source texts.
func passesNLI(relType graphmodel.ClaimRelationType, r relationItem) bool {
	switch relType {
	case graphmodel.RelationContradicts:
		return r.Confidence < 0.95
	case graphmodel.RelationCauses:
		return causalSignal.MatchString(r.FromText) || causalSignal.MatchString(r.ToText)
	default:
		return true
	}
}

// FindCanonical looks up whether text's normalized hash already exists among
// a document's previously-seen claims, returning the canonical claim ID to
// redirect to (Stage 6 unions evidence into the canonical claim).
func FindCanonical(seen map[string]string, text string) (string, bool) {
	hash := normalizedHash(text)
	id, ok := seen[hash]
	return id, ok
}

// RememberCanonical records a claim's normalized hash as seen, for
// subsequent FindCanonical lookups within the same document.
func RememberCanonical(seen map[string]string, claim graphmodel.Claim) {
	seen[claim.NormalizedTextHash] = claim.ID
}
