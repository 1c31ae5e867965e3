package storage

import (
	"time"
)

// Observation is one persisted row: a chain snapshot joined with a price snapshot.
type Observation struct {
	ID               int64
	Name             string
	Height           int64
	Hash             string
	Time             time.Time
	LatestURL        string
	PreviousHash     string
	PreviousURL      string
	PeerCount        int64
	UnconfirmedCount int64
	HighFeePerKB     int64
	MediumFeePerKB   int64
	LowFeePerKB      int64
	LastForkHeight   int64
	LastForkHash     string
	Price            *float64
	Volume24h        *float64
	CapturedAt       time.Time
}
