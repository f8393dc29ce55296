package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

const (
	dateLayout     = "2006-01-02"
	topProductsMax = 5
)

// Summary reports one kind over the inclusive day range [from, to]. An
// empty from or to means today (UTC).
func (s *Service) Summary(ctx context.Context, kind domain.Kind, from string, to string) (domain.Summary, error) {
	if err := requireKind(kind); err != nil {
		return domain.Summary{}, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start, err := parseDay("from", from, today)
	if err != nil {
		return domain.Summary{}, err
	}
	end, err := parseDay("to", to, today)
	if err != nil {
		return domain.Summary{}, err
	}
	if end.Before(start) {
		return domain.Summary{}, fmt.Errorf("%w: to must not be before from", store.ErrInvalid)
	}

	summary, err := s.repo.Summary(ctx, kind, start, end.Add(24*time.Hour), topProductsMax)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.Kind = kind
	summary.From = start.Format(dateLayout)
	summary.To = end.Format(dateLayout)
	return summary, nil
}

func parseDay(field string, value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrInvalid, field)
	}
	return day.UTC(), nil
}
