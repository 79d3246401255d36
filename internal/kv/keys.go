package kv

import (
	"encoding/base64"
	"time"
)

// Key layout in the run-log bucket:
//
//	entry.{code}.{slot}  -- one run, JSON entryState
//	head.{code}          -- key of the most recently started entry
//	success.{code}       -- key of the most recently started successful entry
//	id.{entry id}        -- key of the entry with that id
//
// Job codes are base64url-encoded so arbitrary codes form a single valid
// key token.
const (
	entryPrefix   = "entry."
	headPrefix    = "head."
	successPrefix = "success."
	idPrefix      = "id."
	lockPrefix    = "lock."

	slotFormat = "20060102T150405Z"
)

func codeToken(code string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(code))
}

func entryKey(code string, slot time.Time) string {
	return entryPrefix + codeToken(code) + "." + slot.UTC().Format(slotFormat)
}

func entryKeyPrefix(code string) string {
	return entryPrefix + codeToken(code) + "."
}

// entryKeyFilter matches every entry key of code.
func entryKeyFilter(code string) string {
	return entryKeyPrefix(code) + ">"
}

func headKey(code string) string {
	return headPrefix + codeToken(code)
}

func successKey(code string) string {
	return successPrefix + codeToken(code)
}

func idKey(id string) string {
	return idPrefix + id
}

func lockKey(code string) string {
	return lockPrefix + codeToken(code)
}
