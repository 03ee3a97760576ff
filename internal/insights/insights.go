// Package insights asks a Gemini model for a short written brief over the
// vendor summaries of a run.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/report"
	"github.com/dvloznov/vendor-insights/internal/window"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// topVendors caps the vendors listed by conversion in a digest.
const topVendors = 10

// Generator sends a prompt to a model and returns the raw text reply.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// VendorLine is one vendor as shown to the model. Amounts are in lacs.
type VendorLine struct {
	VendorID       string  `json:"pan"`
	Name           string  `json:"name"`
	ConversionLacs float64 `json:"conversion_lacs"`
	IntakeLacs     float64 `json:"intake_lacs"`
	Acceleration   float64 `json:"acceleration_percent"`
	IntakeTier     string  `json:"intake_tier,omitempty"`
	ConversionTier string  `json:"conversion_tier,omitempty"`
}

// Digest is the compact run summary the model reasons over.
type Digest struct {
	RunID        string         `json:"run_id"`
	Period       string         `json:"fiscal_period"`
	WindowMonths int            `json:"window_months"`
	Vendors      int            `json:"vendors"`
	IntakeTiers  map[string]int `json:"intake_tiers"`
	Conversion   map[string]int `json:"conversion_tiers"`
	Top          []VendorLine   `json:"top_by_conversion"`
	AtRisk       []VendorLine   `json:"at_risk"`
}

// Narrative is the model's structured reply.
type Narrative struct {
	Headline   string   `json:"headline"`
	Highlights []string `json:"highlights"`
	Risks      []string `json:"risks"`
	Actions    []string `json:"actions"`
}

// BuildDigest condenses summaries to the tier mix and the notable vendors
// of one window. Only rows as of the latest month are used.
func BuildDigest(runID string, summaries []report.VendorSummary, size int) Digest {
	if size == 0 {
		size = window.TwelveMonths
	}
	d := Digest{
		RunID:        runID,
		WindowMonths: size,
		IntakeTiers:  make(map[string]int),
		Conversion:   make(map[string]int),
	}

	latest := latestRows(summaries)
	var lines []VendorLine
	for _, s := range latest {
		ws, ok := s.Window(size)
		if !ok {
			continue
		}
		if d.Period == "" {
			d.Period = s.Period
		}
		d.Vendors++
		if ws.IntakeTier != "" {
			d.IntakeTiers[string(ws.IntakeTier)]++
		}
		if ws.ConversionTier != "" {
			d.Conversion[string(ws.ConversionTier)]++
		}

		line := VendorLine{
			VendorID:       s.VendorID,
			Name:           s.VendorName,
			ConversionLacs: ws.ConversionLacs,
			IntakeLacs:     ws.IntakeLacs,
			Acceleration:   ws.AccelerationPercent,
			IntakeTier:     string(ws.IntakeTier),
			ConversionTier: string(ws.ConversionTier),
		}
		lines = append(lines, line)
		if ws.ConversionTier == category.ConversionAtRisk {
			d.AtRisk = append(d.AtRisk, line)
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ConversionLacs > lines[j].ConversionLacs })
	for _, l := range lines {
		if len(d.Top) == topVendors || l.ConversionLacs <= 0 {
			break
		}
		d.Top = append(d.Top, l)
	}
	sort.SliceStable(d.AtRisk, func(i, j int) bool { return d.AtRisk[i].IntakeLacs > d.AtRisk[j].IntakeLacs })
	if len(d.AtRisk) > topVendors {
		d.AtRisk = d.AtRisk[:topVendors]
	}
	return d
}

func latestRows(summaries []report.VendorSummary) []report.VendorSummary {
	byVendor := make(map[string]report.VendorSummary)
	for _, s := range summaries {
		cur, ok := byVendor[s.VendorID]
		if !ok || s.AsOf.After(cur.AsOf) {
			byVendor[s.VendorID] = s
		}
	}
	out := make([]report.VendorSummary, 0, len(byVendor))
	for _, s := range byVendor {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out
}

// Narrator turns a digest into a Narrative.
type Narrator struct {
	gen Generator
}

// NewNarrator returns a Narrator backed by gen.
func NewNarrator(gen Generator) *Narrator {
	return &Narrator{gen: gen}
}

// Narrate sends the digest to the model and parses its JSON reply.
func (n *Narrator) Narrate(ctx context.Context, d Digest) (*Narrative, error) {
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Narrate: marshal digest: %w", err)
	}

	prompt := "Run digest:\n" + string(payload) + "\n\n" + rulesPrompt
	raw, err := n.gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("Narrate: generate: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("Narrate: empty response from model")
	}

	var out Narrative
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("Narrate: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	if out.Headline == "" {
		return nil, fmt.Errorf("Narrate: reply has no headline")
	}
	return &out, nil
}

const systemPrompt = "You are an analyst for an invoice financing desk in India. " +
	"Amounts are in lacs of rupees. Fiscal years run April to March."

const rulesPrompt = "Write a brief for the sales team.\n" +
	"Output STRICT JSON only with these fields:\n" +
	"- \"headline\": string, one sentence\n" +
	"- \"highlights\": array of strings, at most 5\n" +
	"- \"risks\": array of strings naming vendors at risk or churning, at most 5\n" +
	"- \"actions\": array of strings, at most 3\n\n" +
	"Only use numbers present in the digest.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// GeminiGenerator calls the Gemini API through the GenAI SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a client using the environment's credentials.
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	return resp.Text(), nil
}
