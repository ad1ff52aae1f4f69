package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/metrics"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
)

const (
	maxSeedDays  = 366
	seedChunkLen = 500
)

// SeedRequest describes a block of opening hours to publish. Slots start
// every SlotMinutes from OpenHour up to, not including, CloseHour.
type SeedRequest struct {
	From         string `json:"from"`          // first day, YYYY-MM-DD
	Days         int    `json:"days"`          // number of consecutive days
	OpenHour     string `json:"open_hour"`     // HH:MM
	CloseHour    string `json:"close_hour"`    // HH:MM
	WeekdaysOnly bool   `json:"weekdays_only"` // skip Saturdays and Sundays
}

// SlotGrid expands req into slot keys on a minutes grid.
func SlotGrid(req SeedRequest, minutes int) ([]model.SlotKey, error) {
	start, err := time.Parse(model.DateLayout, req.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q", req.From)
	}
	if req.Days < 1 || req.Days > maxSeedDays {
		return nil, fmt.Errorf("days must be between 1 and %d", maxSeedDays)
	}
	open, err := time.Parse(model.ShortHourLayout, req.OpenHour)
	if err != nil {
		return nil, fmt.Errorf("invalid open hour %q", req.OpenHour)
	}
	closing, err := time.Parse(model.ShortHourLayout, req.CloseHour)
	if err != nil {
		return nil, fmt.Errorf("invalid close hour %q", req.CloseHour)
	}
	if !closing.After(open) {
		return nil, fmt.Errorf("close hour must be after open hour")
	}
	if minutes <= 0 || (open.Hour()*60+open.Minute())%minutes != 0 {
		return nil, fmt.Errorf("open hour is not on the %d minute grid", minutes)
	}

	step := time.Duration(minutes) * time.Minute
	var keys []model.SlotKey
	for d := 0; d < req.Days; d++ {
		day := start.AddDate(0, 0, d)
		if req.WeekdaysOnly && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		for t := open; t.Before(closing); t = t.Add(step) {
			keys = append(keys, model.SlotKey{Date: day.Format(model.DateLayout), Hour: t.Format(model.HourLayout)})
		}
	}
	return keys, nil
}

// SeedSlots publishes free slots for req. Existing rows, taken or not, are
// left untouched. It returns how many rows were created.
func (s *ReservationService) SeedSlots(ctx context.Context, req SeedRequest) (created int, err error) {
	ctx, done := s.begin(ctx, "seed_slots")
	defer func() { done(err) }()

	keys, gerr := SlotGrid(req, s.slotMinutes)
	if gerr != nil {
		return 0, ErrInvalidRequest.WithMessage(gerr.Error())
	}
	for i := 0; i < len(keys); i += seedChunkLen {
		end := min(i+seedChunkLen, len(keys))
		n, ierr := s.store.InsertSlots(ctx, keys[i:end])
		if ierr != nil {
			logger.FromContext(ctx).Error().Err(ierr).Int("created", created).Msg("slot seeding stopped")
			return created, ErrQueryFailed.WithMessage("could not create slots").WithError(ierr)
		}
		created += n
	}
	metrics.SlotsSeeded.Add(float64(created))
	logger.FromContext(ctx).Info().Int("created", created).Int("requested", len(keys)).Msg("slots seeded")
	return created, nil
}
