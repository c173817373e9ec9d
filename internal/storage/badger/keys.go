package badger

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Key layout. Ids are path-escaped so a '/' inside an id cannot collide with
// the separator.
//
//	ledger/rec/{contest}/{participant}
//	ledger/evt/{contest}/{participant}/{unixnano}/{eventId}
//	ledger/aud/{contest}/{participant}/{unixnano}/{entryId}
//	facts/{contest}/{participant}/{problem}/{unixnano}
//	factcontests/{contest}
const (
	prefixRecord       = "ledger/rec/"
	prefixEvent        = "ledger/evt/"
	prefixAudit        = "ledger/aud/"
	prefixFact         = "facts/"
	prefixFactContests = "factcontests/"
)

func esc(s string) string {
	return url.PathEscape(s)
}

func stamp(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func recordKey(contestID, participantID string) []byte {
	return []byte(prefixRecord + esc(contestID) + "/" + esc(participantID))
}

func recordPrefix(contestID string) []byte {
	return []byte(prefixRecord + esc(contestID) + "/")
}

func eventKey(contestID, participantID string, ts time.Time, id string) []byte {
	return []byte(prefixEvent + esc(contestID) + "/" + esc(participantID) + "/" + stamp(ts) + "/" + esc(id))
}

func eventPrefix(contestID, participantID string) []byte {
	return []byte(prefixEvent + esc(contestID) + "/" + esc(participantID) + "/")
}

func auditKey(contestID, participantID string, ts time.Time, id string) []byte {
	return []byte(prefixAudit + esc(contestID) + "/" + esc(participantID) + "/" + stamp(ts) + "/" + esc(id))
}

func auditPrefix(contestID, participantID string) []byte {
	return []byte(prefixAudit + esc(contestID) + "/" + esc(participantID) + "/")
}

func factKey(contestID, participantID, problemID string, ts time.Time) []byte {
	return []byte(prefixFact + esc(contestID) + "/" + esc(participantID) + "/" + esc(problemID) + "/" + stamp(ts))
}

func factPrefix(contestID string) []byte {
	return []byte(prefixFact + esc(contestID) + "/")
}

func factContestKey(contestID string) []byte {
	return []byte(prefixFactContests + esc(contestID))
}

func contestFromIndexKey(key []byte) (string, error) {
	return url.PathUnescape(strings.TrimPrefix(string(key), prefixFactContests))
}
