package core

import (
	"context"
	"encoding/json"
	"sync"

	"healthfeed/pkg"
)

type fakeLLM struct {
	mu      sync.Mutex
	resp    string
	err     error
	calls   int
	system  string
	prompts []string
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.prompts = append(f.prompts, prompt)
	return f.resp, f.err
}

// validFeedJSON returns a model response with one item of each type.
func validFeedJSON(headline *string) string {
	items := []map[string]any{
		{"item_type": "exercise", "title": "Gentle evening walk around the block today", "body": "Walk.", "tags": []string{"light", "walking"}},
		{"item_type": "diet", "title": "Fill half your plate with colourful vegetables", "body": "Eat.", "tags": []string{"high_fiber", "light"}},
		{"item_type": "habit", "title": "Drink a glass of water after waking up", "body": "Drink.", "tags": []string{"hydration"}},
		{"item_type": "education", "title": "Why steady meal timing helps your energy levels", "body": "Learn.", "tags": nil},
		{"item_type": "reminder", "title": "Log your blood pressure reading this evening", "body": "Log.", "tags": []string{"bp_aware", "bp_aware"}},
		{"item_type": "recipe", "title": "Moong dal chilla with mint chutney for breakfast", "body": "Cook.",
			"tags":           []string{"allergen_free", "low_cholesterol", "vegetarian"},
			"diet_alignment": "high fibre, low salt",
			"ingredients":    []string{"moong dal", "onion", "tomato", "coriander", "green chilli"},
			"instructions":   []string{"Soak dal", "Grind", "Cook on tawa"},
			"suitable_for":   []string{"hypertension"},
		},
	}
	doc := map[string]any{"items": items}
	if headline != nil {
		doc["headline"] = *headline
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]*pkg.Profile
	vitals    map[string]pkg.Vitals
	ids       []string
	listErr   error
	vitalsErr error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*pkg.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) LatestVitals(ctx context.Context, patientID *string) (pkg.Vitals, error) {
	if f.vitalsErr != nil {
		return nil, f.vitalsErr
	}
	if patientID == nil {
		return pkg.Vitals{}, nil
	}
	return f.vitals[*patientID], nil
}

func (f *fakeProfiles) ListProfileIDs(ctx context.Context, offset, limit int) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[offset:end], nil
}

type savedFeed struct {
	userID string
	date   string
	feed   *pkg.Feed
}

// fakeFeeds accumulates item rows and keeps one daily record per user+date.
type fakeFeeds struct {
	mu    sync.Mutex
	err   error
	items []pkg.StoredFeedItem
	daily map[string]pkg.DailyFeed
	saves []savedFeed
}

func (f *fakeFeeds) SaveFeed(ctx context.Context, userID string, profile *pkg.Profile, feed *pkg.Feed, feedDate string) ([]pkg.StoredFeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.daily == nil {
		f.daily = map[string]pkg.DailyFeed{}
	}
	var rows []pkg.StoredFeedItem
	for _, it := range feed.Items {
		rows = append(rows, pkg.StoredFeedItem{
			UserID: userID, ItemType: it.ItemType, Title: it.Title, Body: it.Body, Tags: it.Tags,
			Lang: profile.Language, RiskLevel: profile.RiskLevel, Conditions: profile.Conditions,
			ValidFor: pkg.FeedValidFor, DayIndex: pkg.FeedDayIndex, Source: pkg.FeedSource,
		})
	}
	f.items = append(f.items, rows...)
	f.daily[userID+"|"+feedDate] = pkg.DailyFeed{UserID: userID, FeedDate: feedDate, Lang: profile.Language, Headline: feed.Headline}
	f.saves = append(f.saves, savedFeed{userID: userID, date: feedDate, feed: feed})
	return rows, nil
}
