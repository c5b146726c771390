package comment

import (
	"context"
	"strings"
	"time"

	"github.com/mango/reabilita/internal/platform/apperr"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Add(ctx context.Context, patientID, sessionID, text string) (*Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.BadRequest("comment is required")
	}
	c := &Comment{Comment: text, Timestamp: s.now().Format(TimestampLayout)}
	if err := s.repo.Add(ctx, patientID, sessionID, c); err != nil {
		return nil, apperr.Internal(err, "Error adding comment")
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, patientID, sessionID string) ([]*Comment, error) {
	comments, err := s.repo.List(ctx, patientID, sessionID)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading comments")
	}
	if len(comments) == 0 {
		return nil, apperr.NotFound("No comments found")
	}
	return comments, nil
}

// Delete removes one comment. ref is matched against comment ids first; if
// no id matches it is treated as a timestamp and the first comment stamped
// with it is removed. Two comments written in the same second share a
// timestamp, so timestamp deletion of either is ambiguous; use the id.
func (s *Service) Delete(ctx context.Context, patientID, sessionID, ref string) error {
	comments, err := s.repo.List(ctx, patientID, sessionID)
	if err != nil {
		return apperr.Internal(err, "Error deleting comment")
	}
	target := ""
	for _, c := range comments {
		if c.ID == ref {
			target = c.ID
			break
		}
	}
	if target == "" {
		for _, c := range comments {
			if c.Timestamp == ref {
				target = c.ID
				break
			}
		}
	}
	if target == "" {
		return apperr.NotFound("Comment not found")
	}
	if err := s.repo.Delete(ctx, patientID, sessionID, target); err != nil {
		return apperr.Internal(err, "Error deleting comment")
	}
	return nil
}
