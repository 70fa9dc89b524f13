package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthfeed/pkg"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxBatchErrors caps the error list returned by RefreshAll.
	MaxBatchErrors = 50
	// DefaultBatchLimit is the page size when the caller gives none.
	DefaultBatchLimit = 100
	// MaxBatchLimit bounds a single refresh_all page.
	MaxBatchLimit = 1000
)

// ProfileReader reads profiles and their latest vitals.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*pkg.Profile, error)
	LatestVitals(ctx context.Context, patientID *string) (pkg.Vitals, error)
	ListProfileIDs(ctx context.Context, offset, limit int) ([]string, error)
}

// FeedWriter persists a generated feed for one user and day.
type FeedWriter interface {
	SaveFeed(ctx context.Context, userID string, profile *pkg.Profile, feed *pkg.Feed, feedDate string) ([]pkg.StoredFeedItem, error)
}

// Generator produces a feed for a profile.
type Generator interface {
	Generate(ctx context.Context, profile *pkg.Profile, vitals pkg.Vitals, lang string) (*pkg.Feed, error)
}

// RefreshError is the report-only failure of a single user refresh.
type RefreshError struct {
	UserID string
	Err    error
}

func (e *RefreshError) Error() string {
	if errors.Is(e.Err, pkg.ErrNotFound) {
		return fmt.Sprintf("%s: 404 Profile not found", e.UserID)
	}
	return fmt.Sprintf("%s: %v", e.UserID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Orchestrator runs the feed pipeline for one user or a page of users.
type Orchestrator struct {
	Profiles  ProfileReader
	Feeds     FeedWriter
	Generator Generator
	Logger    *zap.Logger

	// Workers bounds concurrent users in RefreshAll; 1 means sequential.
	Workers  int
	Location *time.Location
	Now      func() time.Time
}

// NewOrchestrator wires the pipeline.  A nil location means UTC.
func NewOrchestrator(profiles ProfileReader, feeds FeedWriter, gen Generator, workers int, loc *time.Location, logger *zap.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Profiles:  profiles,
		Feeds:     feeds,
		Generator: gen,
		Logger:    logger,
		Workers:   workers,
		Location:  loc,
		Now:       time.Now,
	}
}

// FeedDate is today's calendar date in the orchestrator's timezone.
func (o *Orchestrator) FeedDate() string {
	return o.Now().In(o.Location).Format("2006-01-02")
}

// RefreshUser generates and stores today's feed for one user.  It never
// propagates a failure: the result is either (items written, nil) or
// (0, *RefreshError).  An empty lang uses the profile language.
func (o *Orchestrator) RefreshUser(ctx context.Context, userID, lang string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Error("feed refresh panicked", zap.String("user_id", userID), zap.Any("panic", r))
			count, err = 0, &RefreshError{UserID: userID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := time.Now()
	n, err := o.refresh(ctx, userID, lang)
	if err != nil {
		o.Logger.Warn("feed refresh failed",
			zap.String("user_id", userID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return 0, &RefreshError{UserID: userID, Err: err}
	}
	o.Logger.Info("feed refreshed",
		zap.String("user_id", userID),
		zap.Int("count", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}

func (o *Orchestrator) refresh(ctx context.Context, userID, lang string) (int, error) {
	profile, err := o.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	vitals, err := o.Profiles.LatestVitals(ctx, profile.PatientID)
	if err != nil {
		return 0, fmt.Errorf("load vitals: %w", err)
	}
	if lang == "" {
		lang = profile.Language
	}
	feed, err := o.Generator.Generate(ctx, profile, vitals, lang)
	if err != nil {
		return 0, err
	}
	rows, err := o.Feeds.SaveFeed(ctx, userID, profile, feed, o.FeedDate())
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// RefreshAll refreshes every profile in [offset, offset+limit).  One user's
// failure never stops the batch; at most MaxBatchErrors messages are kept.
func (o *Orchestrator) RefreshAll(ctx context.Context, offset, limit int) pkg.BatchSummary {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = DefaultBatchLimit
	}
	if limit > MaxBatchLimit {
		limit = MaxBatchLimit
	}

	ids, err := o.Profiles.ListProfileIDs(ctx, offset, limit)
	if err != nil {
		o.Logger.Error("failed to list profiles", zap.Int("offset", offset), zap.Int("limit", limit), zap.Error(err))
		return pkg.BatchSummary{Errors: []string{fmt.Sprintf("list profiles: %v", err)}, Message: "failed to list profiles"}
	}
	if len(ids) == 0 {
		return pkg.BatchSummary{Errors: []string{}, Message: "No users in range"}
	}

	// each worker writes only its own slot, so no locking is needed
	results := make([]error, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(o.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			// batch refresh always uses the profile language
			_, results[i] = o.RefreshUser(ctx, id, "")
			return nil
		})
	}
	_ = g.Wait()

	summary := pkg.BatchSummary{Requested: len(ids), Errors: []string{}, Message: "refreshed"}
	for _, err := range results {
		if err == nil {
			summary.Refreshed++
			continue
		}
		if len(summary.Errors) < MaxBatchErrors {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	o.Logger.Info("batch feed refresh finished",
		zap.Int("requested", summary.Requested),
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("failed", summary.Requested-summary.Refreshed),
	)
	return summary
}
