package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDays = 7
	MaxDays     = 366
)

var (
	ErrRangeReversed = errors.New("start date is after end date")
	ErrRangeTooLong  = fmt.Errorf("range exceeds %d days", MaxDays)
)

// TimeFrameParserParams selects a window either as the last Days days ending
// today, or as explicit StartDate/EndDate (YYYY-MM-DD). An explicit date takes
// precedence over Days; a missing EndDate means today.
type TimeFrameParserParams struct {
	Days      int
	StartDate string
	EndDate   string
}

type TimeFrameParser struct {
	timeProvider TimeProvider
	loc          *time.Location
}

func NewTimeFrameParser(loc *time.Location, timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TimeFrameParser{timeProvider: provider, loc: loc}
}

func (p *TimeFrameParser) Parse(params TimeFrameParserParams) (Window, error) {
	today := StartOfDay(p.timeProvider.Now(p.loc), p.loc)

	if strings.TrimSpace(params.StartDate) == "" && strings.TrimSpace(params.EndDate) == "" {
		days := params.Days
		if days == 0 {
			days = DefaultDays
		}
		if days < 0 {
			return Window{}, fmt.Errorf("invalid days %d", days)
		}
		if days > MaxDays {
			return Window{}, ErrRangeTooLong
		}
		return NewWindow(today.AddDate(0, 0, -(days-1)), today, p.loc), nil
	}

	to := today
	if params.EndDate != "" {
		parsed, err := p.parseDate(params.EndDate)
		if err != nil {
			return Window{}, fmt.Errorf("invalid end date: %w", err)
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -(DefaultDays - 1))
	if params.StartDate != "" {
		parsed, err := p.parseDate(params.StartDate)
		if err != nil {
			return Window{}, fmt.Errorf("invalid start date: %w", err)
		}
		from = parsed
	}

	if from.After(to) {
		return Window{}, ErrRangeReversed
	}
	if SpanDays(from, to, p.loc) > MaxDays {
		return Window{}, ErrRangeTooLong
	}
	return NewWindow(from, to, p.loc), nil
}

func (p *TimeFrameParser) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), p.loc)
}
