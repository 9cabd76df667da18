package vocabulary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	model "github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
)

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned by ParseDate for anything but a calendar date.
var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

// DailyWords is the vocabulary set for one day.
type DailyWords struct {
	Date  string       `json:"date"`
	Items []model.Item `json:"items"`
}

// DailyCards is the icon card set for one day.
type DailyCards struct {
	Date  string             `json:"date"`
	Cards []model.VisualCard `json:"cards"`
}

// Config controls the default set sizes and the day boundary.
type Config struct {
	DailyCount  int
	VisualCount int
	Location    *time.Location
	Now         func() time.Time
}

// Service picks the daily vocabulary and visual cards.
type Service struct {
	catalog     model.Catalog
	dailyCount  int
	visualCount int
	loc         *time.Location
	now         func() time.Time
}

// NewService builds a Service. Zero counts fall back to 10 words and 8 cards,
// a nil Location to UTC.
func NewService(catalog model.Catalog, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	daily := cfg.DailyCount
	if daily <= 0 {
		daily = 10
	}
	visual := cfg.VisualCount
	if visual <= 0 {
		visual = 8
	}
	return &Service{catalog: catalog, dailyCount: daily, visualCount: visual, loc: loc, now: now}
}

// Catalog returns the catalog the service draws from.
func (s *Service) Catalog() model.Catalog {
	return s.catalog
}

// Today returns the current calendar date in the service's time zone.
func (s *Service) Today() time.Time {
	return s.now().In(s.loc)
}

// ParseDate resolves a YYYY-MM-DD string, or today when raw is blank.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.Today(), nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

// Daily returns the word set for date. count <= 0 uses the configured size.
func (s *Service) Daily(date time.Time, count int) DailyWords {
	if count <= 0 {
		count = s.dailyCount
	}
	return DailyWords{
		Date:  date.Format(DateLayout),
		Items: SelectDaily(s.catalog.Words, date, count),
	}
}

// Visual returns the icon card set for date. count <= 0 uses the configured size.
func (s *Service) Visual(date time.Time, count int) DailyCards {
	if count <= 0 {
		count = s.visualCount
	}
	return DailyCards{
		Date:  date.Format(DateLayout),
		Cards: SelectDaily(s.catalog.Visual, date, count),
	}
}
