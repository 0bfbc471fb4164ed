package gemini

import (
	"fmt"
	"strings"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/judge"
)

// instruction is the static part of every judge request: rubric, tag
// vocabulary, category list, output contract, and calibration examples.
// It is identical across calls, so it is built exactly once per process.
var instruction = buildInstruction()

func buildInstruction() string {
	var b strings.Builder

	b.WriteString(`You are an editor reviewing "Show HN"-style launches: small products,
tools, and experiments posted by their makers. For each submission below,
judge what was actually built from the provided page text, README,
repository metadata, and screenshot.

Assign each submission a tier, best to worst:

- standout: genuinely impressive; you would lead a digest with it
- strong: well executed and clearly useful to its audience
- decent: works, but unremarkable in execution or novelty
- rough: incomplete, broken-feeling, or hard to see the point of
- skip: nothing to evaluate (dead link, placeholder, pure self-promo)

When a submission sits between two tiers, choose the lower one.

`)

	fmt.Fprintf(&b, "Pick 0-3 vibe tags, only from this list:\n%s\n\n",
		strings.Join(domain.VibeTags, ", "))
	fmt.Fprintf(&b, "Pick exactly one category from this list:\n%s\n(use %q when nothing fits)\n\n",
		strings.Join(domain.Categories, ", "), domain.CategoryOther)

	b.WriteString(`Respond with a JSON array containing one object per submission:

[{"subject_id": "<id as given>",
  "tier": "<tier>",
  "vibe_tags": ["<tag>"],
  "highlight": "<one editorial sentence, max 200 chars>",
  "strengths": ["<short point>"],
  "weaknesses": ["<short point>"],
  "similar_to": ["<0-3 existing products or projects>"],
  "category": "<category>",
  "audience": "<who this is for>"}]

Calibration examples:

- A polished open-source terminal file manager with 4k stars, thorough
  README, demo gif, active issues: tier "strong", tags ["polished",
  "technical"], category "DevTools".
- A single-page ChatGPT wrapper with a text box and no differentiation:
  tier "rough", tags ["minimal"], category "AI/ML".
- A weekend physics toy that is pointless but delightful and well made:
  tier "decent", tags ["playful", "weird"], category "Games".

Return only the JSON array, no commentary.
`)

	return b.String()
}

// subjectFragment renders the variable per-subject block of the request.
func subjectFragment(index int, p judge.Payload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- Submission %d ---\n", index+1)
	fmt.Fprintf(&b, "subject_id: %s\n", p.SubjectID)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.URL != "" {
		fmt.Fprintf(&b, "Link: %s\n", p.URL)
	}
	if p.RepoLanguage != "" || p.RepoStars > 0 {
		fmt.Fprintf(&b, "Repository: %d stars, primary language %s\n", p.RepoStars, p.RepoLanguage)
	}
	if p.AuthorText != "" {
		fmt.Fprintf(&b, "Maker's description:\n%s\n", p.AuthorText)
	}
	if p.Text != "" {
		fmt.Fprintf(&b, "Page text:\n%s\n", p.Text)
	}
	if p.Readme != "" {
		fmt.Fprintf(&b, "README:\n%s\n", p.Readme)
	}
	if len(p.ImagePNG) > 0 {
		b.WriteString("A screenshot of the page is attached.\n")
	}

	return b.String()
}
