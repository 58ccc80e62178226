package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamQuestionsKey returns the cache key for an exam's canonical question set
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// AttemptDeadlineKey returns the cache key holding an attempt's absolute deadline
func (r *CacheKeyStruct) AttemptDeadlineKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:deadline", userID, examID)
}

// AttemptLayoutKey returns the cache key for an attempt's question and option layout
func (r *CacheKeyStruct) AttemptLayoutKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:layout", userID, examID)
}

// AttemptAnswersKey returns the cache key for an attempt's answers hash
func (r *CacheKeyStruct) AttemptAnswersKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:answers", userID, examID)
}

// AttemptFlagsKey returns the cache key for an attempt's flagged question set
func (r *CacheKeyStruct) AttemptFlagsKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:flags", userID, examID)
}

// SubmitLockKey returns the key guarding a single in-flight submission
func (r *CacheKeyStruct) SubmitLockKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:submit_lock", userID, examID)
}

// SessionSnapshotKey returns the key for a user's opaque session snapshot
func (r *CacheKeyStruct) SessionSnapshotKey(userID int) string {
	return fmt.Sprintf("cbt_session:%d", userID)
}

// JoinRateKey returns the counter key for token-join rate limiting
func (r *CacheKeyStruct) JoinRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:join:%s", ip)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
