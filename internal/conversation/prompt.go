package conversation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"ai_gateway/internal/business"
)

var voiceInstructions = map[business.BrandVoice]string{
	business.BrandVoiceCasual: "Write in a friendly, relaxed tone, like chatting with a regular customer.",
	business.BrandVoiceFormal: "Write politely and professionally, using complete sentences.",
	business.BrandVoiceExpert: "Write as a knowledgeable specialist and explain details precisely.",
	business.BrandVoiceLuxury: "Write in a refined, exclusive tone that reflects a premium brand.",
}

var goalInstructions = map[business.Goal]string{
	business.GoalConversion: "Your main goal is to help the customer choose a product and complete a purchase.",
	business.GoalLeads:      "Your main goal is to collect the customer's name and needs so the sales team can follow up.",
	business.GoalSupport:    "Your main goal is to resolve the customer's questions and problems quickly.",
}

var fallbackRules = []string{
	"Keep replies short enough to read comfortably on a phone.",
	"Only state prices and product details that appear above.",
	"If you do not know an answer, say so and offer to connect the customer with the team.",
	"Never invent promotions, discounts or delivery times.",
	"Ask at most one question per reply.",
}

// refusals are indexed like refusalTags
var (
	refusalTags = []language.Tag{
		language.English,
		language.Indonesian,
		language.Malay,
		language.Spanish,
		language.Portuguese,
	}
	refusals = []string{
		"Sorry, I can only help with questions about our business and products.",
		"Maaf, saya hanya dapat membantu pertanyaan seputar bisnis dan produk kami.",
		"Maaf, saya hanya boleh membantu dengan soalan tentang perniagaan dan produk kami.",
		"Lo siento, solo puedo ayudar con preguntas sobre nuestro negocio y nuestros productos.",
		"Desculpe, só posso ajudar com perguntas sobre o nosso negócio e os nossos produtos.",
	}
	refusalMatcher = language.NewMatcher(refusalTags)

	languageNames = map[string]string{
		"english":          "en",
		"indonesian":       "id",
		"indonesia":        "id",
		"bahasa":           "id",
		"bahasa indonesia": "id",
		"malay":            "ms",
		"bahasa melayu":    "ms",
		"spanish":          "es",
		"español":          "es",
		"portuguese":       "pt",
		"português":        "pt",
	}
)

// RefusalFor returns the canned off-topic refusal in the language closest to lang.
// Unknown languages get English.
func RefusalFor(lang string) string {
	key := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[key]; ok {
		key = code
	}
	tag, err := language.Parse(key)
	if err != nil {
		return refusals[0]
	}
	_, index, confidence := refusalMatcher.Match(tag)
	if confidence == language.No {
		return refusals[0]
	}
	return refusals[index]
}

// RenderSystemPrompt renders the business profile into the system prompt.
// Clauses always appear in the same order and are omitted when their data is empty.
func RenderSystemPrompt(bctx *business.Context) string {
	p := &bctx.Profile
	var clauses []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			clauses = append(clauses, s)
		}
	}

	add(persona(p))
	add(goalInstructions[p.PrimaryGoal])
	if lang := strings.TrimSpace(p.Language); lang != "" {
		add(fmt.Sprintf("Always reply in %s.", lang))
	}
	add(productBlock("Product knowledge:", p.ProductKnowledge))
	add(productBlock("Product catalog:", p.ProductCatalog))
	add(faqBlock(p.FAQ))
	add(salesBlock(p))
	if p.BoundariesEnabled {
		add(fmt.Sprintf("Only discuss %s and its products. If the customer asks about anything else, reply exactly: \"%s\"",
			businessLabel(p), RefusalFor(p.Language)))
	}
	add(fmt.Sprintf("If the customer asks for a human or you cannot help, end your reply with %s.", business.HandoverSentinel))
	add(scriptBlock(p.SalesScript))
	add(rulesBlock(p.CustomRules))

	return strings.Join(clauses, "\n\n")
}

func businessLabel(p *business.Profile) string {
	if name := strings.TrimSpace(p.BusinessName); name != "" {
		return name
	}
	return "this business"
}

func persona(p *business.Profile) string {
	var b strings.Builder
	if name := strings.TrimSpace(p.BusinessName); name != "" {
		fmt.Fprintf(&b, "You are the WhatsApp assistant of %s.", name)
	}
	if voice, ok := voiceInstructions[p.BrandVoice]; ok {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(voice)
	}
	return b.String()
}

func productBlock(title string, items []business.Product) string {
	var lines []string
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		line := "- " + name
		if d := strings.TrimSpace(item.Description); d != "" {
			line += ": " + d
		}
		if price := strings.TrimSpace(item.Price); price != "" {
			line += " (price: " + price + ")"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return title + "\n" + strings.Join(lines, "\n")
}

func faqBlock(entries []business.FAQEntry) string {
	var b strings.Builder
	for _, e := range entries {
		q, a := strings.TrimSpace(e.Question), strings.TrimSpace(e.Answer)
		if q == "" || a == "" {
			continue
		}
		fmt.Fprintf(&b, "\nQ: %s\nA: %s", q, a)
	}
	if b.Len() == 0 {
		return ""
	}
	return "Frequently asked questions:" + b.String()
}

func salesBlock(p *business.Profile) string {
	var parts []string
	if t := strings.TrimSpace(p.BusinessType); t != "" {
		parts = append(parts, "Business type: "+t+".")
	}

	var upsell []string
	for _, s := range p.UpsellStrategies {
		if s = strings.TrimSpace(s); s != "" {
			upsell = append(upsell, "- "+s)
		}
	}
	if len(upsell) > 0 {
		parts = append(parts, "When it fits the conversation, suggest:\n"+strings.Join(upsell, "\n"))
	}

	var objections []string
	for _, o := range p.ObjectionHandling {
		obj, resp := strings.TrimSpace(o.Objection), strings.TrimSpace(o.Response)
		if obj == "" || resp == "" {
			continue
		}
		objections = append(objections, fmt.Sprintf("- If the customer says %q, answer along the lines of: %s", obj, resp))
	}
	if len(objections) > 0 {
		parts = append(parts, "Handling objections:\n"+strings.Join(objections, "\n"))
	}
	return strings.Join(parts, "\n")
}

func scriptBlock(steps []business.ScriptStep) string {
	var lines []string
	for _, s := range steps {
		script := strings.TrimSpace(s.Script)
		if script == "" {
			continue
		}
		if stage := strings.TrimSpace(s.Stage); stage != "" {
			script = stage + ": " + script
		}
		lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, script))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Follow this sales script:\n" + strings.Join(lines, "\n")
}

func rulesBlock(custom []string) string {
	rules := make([]string, 0, len(custom))
	for _, r := range custom {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		rules = fallbackRules
	}

	var b strings.Builder
	b.WriteString("Rules:")
	for i, r := range rules {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r)
	}
	return b.String()
}
