package nats

import "fmt"

// Subject and bucket layout.
//
//	ojs.cron.events.{code}  -- run outcome events for one job
//	ojs.cron.events.>       -- every run outcome event
const (
	SubjectPrefix = "ojs.cron"

	// KV bucket names
	BucketRunLog = "ojs-cron-runlog"
	BucketLocks  = "ojs-cron-locks"
)

// EventSubject returns the subject run events for code are published on.
// Example: ojs.cron.events.cron.RunAtTimeCronJob
func EventSubject(code string) string {
	return fmt.Sprintf("%s.events.%s", SubjectPrefix, code)
}

// EventsAllSubject returns the wildcard subject for all run events.
func EventsAllSubject() string {
	return fmt.Sprintf("%s.events.>", SubjectPrefix)
}
