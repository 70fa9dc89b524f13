package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"healthfeed/internal/llm"
	"healthfeed/pkg"

	"go.uber.org/zap"
)

// SchemaPolicy decides what happens when the generated item types do not
// match the required six.
type SchemaPolicy string

const (
	// SchemaStrict fails the generation with pkg.ErrSchemaViolation.
	SchemaStrict SchemaPolicy = "strict"
	// SchemaLenient logs the mismatch and returns the feed as generated.
	SchemaLenient SchemaPolicy = "lenient"
)

// FeedGenerator turns a profile and its vitals into a six-item feed using
// the rule seeder and one LLM call.
type FeedGenerator struct {
	LLM    llm.Client
	Policy SchemaPolicy
	Logger *zap.Logger
}

// NewFeedGenerator constructs a generator.  An empty policy means strict.
func NewFeedGenerator(client llm.Client, policy SchemaPolicy, logger *zap.Logger) *FeedGenerator {
	if policy == "" {
		policy = SchemaStrict
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedGenerator{LLM: client, Policy: policy, Logger: logger}
}

// rawFeed mirrors the model output loosely so that a wrong field shape on one
// item does not discard the whole response.
type rawFeed struct {
	Headline json.RawMessage `json:"headline"`
	Items    []rawItem       `json:"items"`
}

type rawItem struct {
	ItemType      json.RawMessage `json:"item_type"`
	Title         json.RawMessage `json:"title"`
	Body          json.RawMessage `json:"body"`
	Tags          json.RawMessage `json:"tags"`
	DietAlignment json.RawMessage `json:"diet_alignment"`
	Ingredients   json.RawMessage `json:"ingredients"`
	Instructions  json.RawMessage `json:"instructions"`
	SuitableFor   json.RawMessage `json:"suitable_for"`
}

// Generate runs seed -> prompt -> LLM -> parse -> tag merge -> validate.
// LLM failures and non-JSON output are returned as pkg.ErrGeneration; no retry
// is attempted.
func (g *FeedGenerator) Generate(ctx context.Context, profile *pkg.Profile, vitals pkg.Vitals, lang string) (*pkg.Feed, error) {
	seeds := SeedRules(profile, vitals, lang)
	prompt := RenderPrompt(profile, vitals, seeds)

	content, err := g.LLM.CompleteJSON(ctx, SystemSafety, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: llm call: %v", pkg.ErrGeneration, err)
	}

	feed, err := ParseFeed(content, seeds.Tags)
	if err != nil {
		return nil, err
	}

	if err := CheckItemTypes(feed.Items); err != nil {
		if g.Policy == SchemaStrict {
			return nil, err
		}
		g.Logger.Warn("accepting feed with item type mismatch",
			zap.String("user_id", profile.ID),
			zap.Error(err),
		)
	}
	for _, it := range feed.Items {
		if it.ItemType == pkg.ItemRecipe {
			g.checkRecipeTags(profile.ID, it)
		}
	}
	return feed, nil
}

// ParseFeed decodes the model output and merges the mandatory tags into every
// item.  A missing or blank headline becomes DefaultHeadline.
func ParseFeed(content string, mandatoryTags []string) (*pkg.Feed, error) {
	body := []byte(stripFence(content))
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", pkg.ErrGeneration)
	}
	var raw rawFeed
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: unexpected response shape: %v", pkg.ErrGeneration, err)
	}

	feed := &pkg.Feed{Headline: DefaultHeadline, Items: make([]pkg.FeedItem, 0, len(raw.Items))}
	if h := decodeText(raw.Headline); strings.TrimSpace(h) != "" {
		feed.Headline = h
	}
	for _, ri := range raw.Items {
		item := pkg.FeedItem{
			ItemType:      pkg.ItemType(strings.ToLower(strings.TrimSpace(decodeText(ri.ItemType)))),
			Title:         decodeText(ri.Title),
			Body:          decodeText(ri.Body),
			Tags:          MergeTags(decodeList(ri.Tags), mandatoryTags),
			DietAlignment: decodeText(ri.DietAlignment),
			Ingredients:   decodeList(ri.Ingredients),
			Instructions:  decodeList(ri.Instructions),
			SuitableFor:   decodeList(ri.SuitableFor),
		}
		if item.ItemType == pkg.ItemRecipe && item.SuitableFor == nil {
			item.SuitableFor = []string{}
		}
		feed.Items = append(feed.Items, item)
	}
	return feed, nil
}

// MergeTags returns the sorted, de-duplicated union of both tag lists.
// Blank tags are dropped.
func MergeTags(itemTags, mandatoryTags []string) []string {
	set := make(map[string]bool, len(itemTags)+len(mandatoryTags))
	for _, group := range [][]string{itemTags, mandatoryTags} {
		for _, t := range group {
			if t = strings.TrimSpace(t); t != "" {
				set[t] = true
			}
		}
	}
	return sortedKeys(set)
}

// CheckItemTypes verifies the items cover each required type exactly once.
func CheckItemTypes(items []pkg.FeedItem) error {
	counts := make(map[pkg.ItemType]int, len(items))
	for _, it := range items {
		counts[it.ItemType]++
	}
	var missing, duplicated, unexpected []string
	required := make(map[pkg.ItemType]bool, len(pkg.RequiredItemTypes))
	for _, t := range pkg.RequiredItemTypes {
		required[t] = true
		switch n := counts[t]; {
		case n == 0:
			missing = append(missing, string(t))
		case n > 1:
			duplicated = append(duplicated, string(t))
		}
	}
	for t := range counts {
		if !required[t] {
			unexpected = append(unexpected, string(t))
		}
	}
	if len(missing) == 0 && len(duplicated) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(duplicated)
	sort.Strings(unexpected)
	return fmt.Errorf("%w: got %d items, missing %v, duplicated %v, unexpected %v",
		pkg.ErrSchemaViolation, len(items), missing, duplicated, unexpected)
}

func (g *FeedGenerator) checkRecipeTags(userID string, it pkg.FeedItem) {
	allergen, cholesterol := countIn(it.Tags, AllergenTags), countIn(it.Tags, CholesterolTags)
	if allergen != 1 || cholesterol != 1 {
		g.Logger.Warn("recipe classification tags incomplete",
			zap.String("user_id", userID),
			zap.Int("allergen_tags", allergen),
			zap.Int("cholesterol_tags", cholesterol),
		)
	}
}

func countIn(tags, set []string) int {
	n := 0
	for _, t := range tags {
		for _, s := range set {
			if t == s {
				n++
			}
		}
	}
	return n
}

// decodeList accepts a JSON array of strings or a comma separated string.
// Anything else yields nil.
func decodeList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// decodeText returns a JSON string value, or "" for anything else.
func decodeText(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
