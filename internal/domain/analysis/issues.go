package analysis

import (
	"sort"
	"strings"
)

// IssueBucket categorizes issue text pulled from unit results.
type IssueBucket string

const (
	BucketScheduling IssueBucket = "scheduling"
	BucketTechnical  IssueBucket = "technical"
	BucketCustomer   IssueBucket = "customer"
	BucketEquipment  IssueBucket = "equipment"
	BucketOther      IssueBucket = "other"
)

// IssueIndex is the deterministic aggregation of all issues reported by
// successful units, bucketed by keyword heuristics, plus any information the
// provider flagged as missing.
type IssueIndex struct {
	Buckets     map[IssueBucket][]string `json:"buckets"`
	MissingInfo []string                 `json:"missing_information,omitempty"`
}

// Keyword tables are checked in order; the first bucket with a hit wins.
// Equipment runs before scheduling so that material-shortage wording never
// lands in the scheduling bucket even when a delay is mentioned alongside.
var bucketKeywords = []struct {
	bucket   IssueBucket
	keywords []string
}{
	{BucketEquipment, []string{"shortage", "material", "parts", "missing part", "equipment", "cable drop", "hardware", "inventory"}},
	{BucketTechnical, []string{"fault", "failure", "config", "circuit", "signal", "test fail", "install", "wiring", "connect", "technical"}},
	{BucketCustomer, []string{"customer", "client", "site access", "access denied", "no show", "locked", "refused", "unavailable contact"}},
	{BucketScheduling, []string{"schedul", "resched", "appointment", "postpone", "delay", "availability", "time window"}},
}

// ClassifyIssue assigns one issue text to a bucket.
func ClassifyIssue(text string) IssueBucket {
	lowered := strings.ToLower(text)
	for _, entry := range bucketKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.bucket
			}
		}
	}
	return BucketOther
}

// CompileIssues aggregates issues and missing-information entries from unit
// results. No external call is involved; the output depends only on the set
// of successful units, not on their completion order. Entries within each
// bucket are sorted and deduplicated.
func CompileIssues(units []UnitResult) IssueIndex {
	index := IssueIndex{Buckets: make(map[IssueBucket][]string)}
	seenIssue := map[string]bool{}
	seenMissing := map[string]bool{}

	for _, u := range units {
		if u.Status != UnitOK {
			continue
		}
		for _, issue := range u.Issues {
			if seenIssue[issue] {
				continue
			}
			seenIssue[issue] = true
			bucket := ClassifyIssue(issue)
			index.Buckets[bucket] = append(index.Buckets[bucket], issue)
		}
		for _, m := range u.MissingInfo {
			if seenMissing[m] {
				continue
			}
			seenMissing[m] = true
			index.MissingInfo = append(index.MissingInfo, m)
		}
	}

	for bucket := range index.Buckets {
		sort.Strings(index.Buckets[bucket])
	}
	sort.Strings(index.MissingInfo)
	return index
}
