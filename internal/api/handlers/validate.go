package handlers

import (
	"regexp"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	userIDRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	// Names, locations and topics also allow spaces.
	labelRe = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)
)

const (
	maxUserTopics       = 50
	maxConferenceTopics = 10
	maxDuration         = 12 * time.Hour
)

func validTopics(topics []string, max int) (string, bool) {
	if len(topics) == 0 {
		return "At least one topic is required", false
	}
	if len(topics) > max {
		return "Maximum number of topics exceeded", false
	}
	for _, t := range topics {
		if !labelRe.MatchString(t) {
			return "Topics should be Alphanumeric with spaces allowed", false
		}
	}
	return "", true
}

// parseTimestamp parses the wire format "YYYY-MM-DD HH:MM:SS", read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, s, time.UTC)
}
