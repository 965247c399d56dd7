package main

import (
	"errors"
	"strings"
	"time"

	"github.com/sunshineplan/limiter"
	"github.com/sunshineplan/utils/unit"
	"golang.org/x/time/rate"
)

type limit struct {
	daily   unit.ByteSize
	monthly unit.ByteSize
	speed   *limiter.Limiter
	st      *rate.Sometimes
}

func unlimited() *limit { return &limit{speed: limiter.New(limiter.Inf)} }

// parseLimit parses "[daily:]monthly[|speed]". Empty parts mean no limit.
func parseLimit(s string) (*limit, error) {
	if strings.Count(s, "|") > 1 {
		return nil, errors.New("failed to parse limit")
	}
	quota, speed, _ := strings.Cut(s, "|")

	res := unlimited()
	if speed = strings.TrimSpace(speed); speed != "" {
		bs, err := unit.ParseByteSize(speed)
		if err != nil {
			return nil, err
		}
		res.speed = limiter.New(limiter.Limit(bs))
	}

	daily, monthly, found := strings.Cut(quota, ":")
	if !found {
		daily, monthly = "", daily
	} else if strings.Contains(monthly, ":") {
		return nil, errors.New("failed to parse limit")
	}
	var err error
	if daily = strings.TrimSpace(daily); daily != "" {
		if res.daily, err = unit.ParseByteSize(daily); err != nil {
			return nil, err
		}
	}
	if monthly = strings.TrimSpace(monthly); monthly != "" {
		if res.monthly, err = unit.ParseByteSize(monthly); err != nil {
			return nil, err
		}
	}
	if res.daily != 0 || res.monthly != 0 {
		res.st = newSometimes(time.Minute)
	}
	return res, nil
}

func (limit limit) isExceeded(record *record) bool {
	switch {
	case limit.daily != 0 && record.today.Get() >= int64(limit.daily):
		return true
	case limit.monthly != 0 && record.monthly.Get() >= int64(limit.monthly):
		return true
	}
	return false
}
