// Package postprocess turns a raw assistant reply into the response handed to
// the messaging transport: it detects handover requests and, best effort,
// attaches the image of the product the conversation is about.
package postprocess

import (
	"strings"
	"unicode"

	"ai_gateway/internal/business"
	"ai_gateway/internal/utils"
)

// Response is what the transport delivers back to the customer.
type Response struct {
	Content       string `json:"content"`
	ImageID       string `json:"image_id,omitempty"`
	NeedsHandover bool   `json:"needs_handover"`
}

// Weights tune the product-mention heuristic.
type Weights struct {
	NameInResponse float64 // reply mentions the product name
	WordOverlap    float64 // scaled by the share of name words found in the inbound text
	IntentBonus    float64 // inbound text asks about price or pictures
	Threshold      float64 // minimum score for an image to be attached
}

// DefaultWeights returns the stock heuristic weights
func DefaultWeights() Weights {
	return Weights{NameInResponse: 50, WordOverlap: 30, IntentBonus: 20, Threshold: 40}
}

// intentKeywords are price and picture words in English and Indonesian
var intentKeywords = []string{
	"harga", "berapa", "price", "cost", "how much",
	"foto", "photo", "gambar", "picture", "pic", "image", "lihat",
}

// Processor post-processes assistant replies
type Processor struct {
	weights Weights
	logger  *utils.Logger
}

// NewProcessor creates a processor with the given weights
func NewProcessor(weights Weights) *Processor {
	return &Processor{weights: weights, logger: utils.NewLogger("postprocess")}
}

// PostProcess strips the handover sentinel from raw, flags handover when the
// sentinel was present or inbound contains a handover trigger, and attaches the
// best-scoring product image when image attachments are enabled.
func (p *Processor) PostProcess(raw, inbound string, bctx *business.Context) Response {
	content := raw
	handover := false
	if strings.Contains(content, business.HandoverSentinel) {
		handover = true
		content = strings.ReplaceAll(content, business.HandoverSentinel, "")
	}
	content = strings.TrimSpace(content)

	if matchesTrigger(inbound, bctx.Profile.HandoverTriggers) {
		handover = true
	}

	resp := Response{Content: content, NeedsHandover: handover}
	if bctx.AI.ImageAttachments {
		if item, score, ok := p.BestProduct(content, inbound, bctx.Profile.Catalog()); ok {
			resp.ImageID = item.ImageID
			p.logger.Debug("Attaching product image", "device", bctx.DeviceID, "product", item.Name, "score", score)
		}
	}
	return resp
}

// BestProduct returns the highest-scoring named product at or above the
// threshold. Ties keep the first product; a winner without an image yields none.
func (p *Processor) BestProduct(reply, inbound string, items []business.Product) (business.Product, float64, bool) {
	best := -1
	bestScore := 0.0
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		score := p.Score(item.Name, reply, inbound)
		if score >= p.weights.Threshold && (best < 0 || score > bestScore) {
			best, bestScore = i, score
		}
	}
	if best < 0 || items[best].ImageID == "" {
		return business.Product{}, 0, false
	}
	return items[best], bestScore, true
}

// Score rates how strongly the exchange is about the named product. The name
// must appear in the reply exactly as written; inbound word overlap ignores case.
func (p *Processor) Score(name, reply, inbound string) float64 {
	name = strings.TrimSpace(name)
	lowerName := strings.ToLower(name)
	lowerInbound := strings.ToLower(inbound)

	score := 0.0
	if name != "" && strings.Contains(reply, name) {
		score += p.weights.NameInResponse
	}

	words := significantWords(lowerName)
	if len(words) == 0 {
		return score
	}
	inboundWords := make(map[string]bool)
	for _, w := range tokenize(lowerInbound) {
		inboundWords[w] = true
	}
	matched := 0
	for _, w := range words {
		if inboundWords[w] {
			matched++
		}
	}
	score += p.weights.WordOverlap * float64(matched) / float64(len(words))

	if matched > 0 && hasIntent(lowerInbound) {
		score += p.weights.IntentBonus
	}
	return score
}

func significantWords(s string) []string {
	var out []string
	for _, w := range tokenize(s) {
		if len([]rune(w)) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasIntent(lowerInbound string) bool {
	for _, k := range intentKeywords {
		if strings.Contains(lowerInbound, k) {
			return true
		}
	}
	return false
}

func matchesTrigger(inbound string, triggers []string) bool {
	lower := strings.ToLower(inbound)
	for _, t := range triggers {
		t = strings.TrimSpace(t)
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
