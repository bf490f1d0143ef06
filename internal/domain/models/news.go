package models

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// NewsItem is append-only and immutable once stored. ID is derived from
// (URL, TS) so the same headline fetched twice dedups to one row.
type NewsItem struct {
	ID       string
	TS       time.Time
	Source   Source
	Headline string
	URL      string
	Tone     float64 // provider sentiment, 0 when not reported
	Tags     []string
	Related  []InstrumentKey
}

func NewsID(url string, ts time.Time) string {
	h := sha1.Sum([]byte(url + "|" + ts.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h[:])
}
