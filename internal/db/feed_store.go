package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"healthfeed/pkg"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SaveFeed inserts one user_feed_items row per item and upserts the daily
// headline for (user, feedDate).  Both writes share one transaction so a
// failure leaves neither behind.  Item rows are never deduplicated: a second
// generation on the same day adds another set of rows while the daily record
// stays single.
func (r *Repository) SaveFeed(ctx context.Context, userID string, profile *pkg.Profile, feed *pkg.Feed, feedDate string) ([]pkg.StoredFeedItem, error) {
	lang := profile.Language
	if lang == "" {
		lang = pkg.DefaultLanguage
	}
	conditions := profile.Conditions
	if conditions == nil {
		conditions = []string{}
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", pkg.ErrPersistence, err)
	}
	defer tx.Rollback()

	rows := make([]pkg.StoredFeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		row := pkg.StoredFeedItem{
			ID:         uuid.NewString(),
			UserID:     userID,
			FeedDate:   feedDate,
			ItemType:   it.ItemType,
			Title:      it.Title,
			Body:       it.Body,
			Lang:       lang,
			Tags:       it.Tags,
			RiskLevel:  profile.RiskLevel,
			Conditions: conditions,
			ValidFor:   pkg.FeedValidFor,
			DayIndex:   pkg.FeedDayIndex,
			Source:     pkg.FeedSource,
			Recipe:     it.Recipe(),
		}
		if row.Tags == nil {
			row.Tags = []string{}
		}
		recipe, err := marshalRecipe(row.Recipe)
		if err != nil {
			return nil, fmt.Errorf("%w: encode recipe: %v", pkg.ErrPersistence, err)
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO user_feed_items
                (id, user_id, feed_date, item_type, title, body, lang, tags, risk_level, conditions,
                 valid_for, day_index, source, recipe)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
             RETURNING created_at`,
			row.ID, userID, feedDate, string(row.ItemType), row.Title, row.Body, lang,
			pq.Array(row.Tags), row.RiskLevel, pq.Array(conditions),
			row.ValidFor, row.DayIndex, row.Source, recipe,
		).Scan(&row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: insert item %s: %v", pkg.ErrPersistence, row.ItemType, err)
		}
		rows = append(rows, row)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_feed_daily (user_id, feed_date, lang, headline)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (user_id, feed_date)
         DO UPDATE SET headline = EXCLUDED.headline, lang = EXCLUDED.lang, updated_at = NOW()`,
		userID, feedDate, lang, feed.Headline,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert daily feed: %v", pkg.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", pkg.ErrPersistence, err)
	}

	if r.Notifier != nil {
		if err := r.Notifier.Notify(ctx, userID); err != nil {
			r.Logger.Warn("failed to notify feed refresh", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return rows, nil
}

func marshalRecipe(rd *pkg.RecipeDetails) (any, error) {
	if rd == nil {
		return nil, nil
	}
	b, err := json.Marshal(rd)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ListFeedItems returns the items stored for a user and day, oldest first.
func (r *Repository) ListFeedItems(ctx context.Context, userID, feedDate string) ([]pkg.StoredFeedItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, to_char(feed_date, 'YYYY-MM-DD'), item_type, title, body, lang, tags,
                COALESCE(risk_level, ''), conditions, valid_for, day_index, source, recipe, created_at
         FROM user_feed_items
         WHERE user_id = $1 AND feed_date = $2
         ORDER BY created_at ASC, id ASC`, userID, feedDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.StoredFeedItem
	for rows.Next() {
		var it pkg.StoredFeedItem
		var itemType string
		var recipe []byte
		if err := rows.Scan(&it.ID, &it.UserID, &it.FeedDate, &itemType, &it.Title, &it.Body, &it.Lang,
			pq.Array(&it.Tags), &it.RiskLevel, pq.Array(&it.Conditions), &it.ValidFor, &it.DayIndex,
			&it.Source, &recipe, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.ItemType = pkg.ItemType(itemType)
		if len(recipe) > 0 {
			var rd pkg.RecipeDetails
			if err := json.Unmarshal(recipe, &rd); err != nil {
				return nil, fmt.Errorf("decode recipe for item %s: %w", it.ID, err)
			}
			it.Recipe = &rd
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetDailyFeed loads the headline record for a user and day.
func (r *Repository) GetDailyFeed(ctx context.Context, userID, feedDate string) (*pkg.DailyFeed, error) {
	var d pkg.DailyFeed
	err := r.DB.QueryRowContext(ctx,
		`SELECT user_id, to_char(feed_date, 'YYYY-MM-DD'), lang, headline
         FROM user_feed_daily
         WHERE user_id = $1 AND feed_date = $2`, userID, feedDate,
	).Scan(&d.UserID, &d.FeedDate, &d.Lang, &d.Headline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("daily feed %s/%s: %w", userID, feedDate, pkg.ErrNotFound)
		}
		return nil, err
	}
	return &d, nil
}
