package review

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// MatchStore is the subset of the match repository the review flow needs.
type MatchStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.MatchResult, error)
	ApplyReview(ctx context.Context, match *models.MatchResult, expectedVersion int) error
}

// JobStore looks up the job a match belongs to.
type JobStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.ReconciliationJob, error)
}

// Service applies reviewer decisions to pending matches. Reviews are only
// accepted once the owning job has reached a terminal state, and writes use
// optimistic concurrency so two reviewers cannot silently overwrite each
// other.
type Service struct {
	matches  MatchStore
	jobs     JobStore
	emitter  events.Emitter
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewService(matches MatchStore, jobs JobStore, emitter events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		matches:  matches,
		jobs:     jobs,
		emitter:  emitter,
		validate: validator.New(),
		logger:   logger,
	}
}

// Review applies a reviewer decision to a match. CONFIRM marks the match
// REVIEWED keeping its confidence; REJECT downgrades it to NO_MATCH. The
// request's version must equal the match's current version or the review is
// rejected with a concurrent modification error.
func (s *Service) Review(ctx context.Context, tenantID, matchID string, req *models.ReviewRequest) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Review")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, sageerrors.NewValidation("invalid review request: %v", err)
	}

	match, err := s.matches.Get(ctx, tenantID, matchID)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Get(ctx, tenantID, match.JobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return nil, sageerrors.NewInvalidState(
			"match %s cannot be reviewed while job %s is %s", matchID, job.ID, job.Status)
	}

	switch req.Decision {
	case models.ReviewDecisionConfirm:
		match.Status = models.MatchStatusReviewed
	case models.ReviewDecisionReject:
		match.Status = models.MatchStatusNoMatch
	}
	if req.Confidence != nil {
		match.Confidence = *req.Confidence
	}
	match.ReviewedBy = &req.ReviewedBy
	match.ReviewNote = req.Note

	if err := s.matches.ApplyReview(ctx, match, req.Version); err != nil {
		return nil, err
	}

	metrics.ReviewsTotal.WithLabelValues(tenantID, string(req.Decision)).Inc()

	if err := s.emitter.EmitMatchReviewed(ctx, match, req.Decision); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"match_id": matchID,
		}).Error("Failed to emit match reviewed event")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"match_id": matchID,
		"decision": req.Decision,
		"reviewer": req.ReviewedBy,
	}).Infof("Match reviewed")

	return match, nil
}
