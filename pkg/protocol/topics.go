package protocol

import "strings"

const (
	TopicAdminAlertsGlobal = "adminAlertsGlobal"

	leaderboardPrefix     = "leaderboard:"
	adminAlertsPrefix     = "adminAlerts:"
	submissionWatchPrefix = "submissionWatch:"
)

type TopicKind string

const (
	TopicKindLeaderboard     TopicKind = "leaderboard"
	TopicKindAdminAlerts     TopicKind = "adminAlerts"
	TopicKindAdminGlobal     TopicKind = "adminAlertsGlobal"
	TopicKindSubmissionWatch TopicKind = "submissionWatch"
	TopicKindOther           TopicKind = "other"
)

func LeaderboardTopic(contestID string) string {
	return leaderboardPrefix + contestID
}

func AdminAlertsTopic(contestID string) string {
	return adminAlertsPrefix + contestID
}

func SubmissionWatchTopic(submissionID string) string {
	return submissionWatchPrefix + submissionID
}

// Relayed reports whether publishes on topics of this kind are forwarded to
// other instances. Only admin alerts originate on a single instance; every
// instance derives leaderboards and submission watches from its own judge
// event stream.
func (k TopicKind) Relayed() bool {
	return k == TopicKindAdminAlerts || k == TopicKindAdminGlobal
}

func KindOf(topic string) TopicKind {
	switch {
	case topic == TopicAdminAlertsGlobal:
		return TopicKindAdminGlobal
	case strings.HasPrefix(topic, leaderboardPrefix):
		return TopicKindLeaderboard
	case strings.HasPrefix(topic, adminAlertsPrefix):
		return TopicKindAdminAlerts
	case strings.HasPrefix(topic, submissionWatchPrefix):
		return TopicKindSubmissionWatch
	default:
		return TopicKindOther
	}
}

// LeaderboardContest returns the contest id of a leaderboard topic.
func LeaderboardContest(topic string) (string, bool) {
	contestID, ok := strings.CutPrefix(topic, leaderboardPrefix)
	if !ok || contestID == "" {
		return "", false
	}
	return contestID, true
}
