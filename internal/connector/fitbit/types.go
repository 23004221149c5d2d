package fitbit

import (
	"encoding/json"

	"lifesync/internal/fetch"
)

type SleepLog struct {
	LogID       int64  `json:"logId"`
	DateOfSleep string `json:"dateOfSleep"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsMainSleep bool   `json:"isMainSleep"`
}

type sleepResponse struct {
	Sleep []fetch.Typed[SleepLog] `json:"sleep"`
}

// DailyActivity is the activity summary document of one day.
type DailyActivity struct {
	Date string
	Data json.RawMessage
}

// SeriesPoint is one day of a date-range series.
type SeriesPoint struct {
	DateTime string `json:"dateTime"`
}
