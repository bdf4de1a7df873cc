package config

import (
	"fmt"
	"net/url"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the cache key for a student's durable session
// snapshot. The key is a composite of exam identity plus the student-supplied
// name and class: two students entering identical name+class text collide on
// the same snapshot. Known gap, kept deliberately.
func (r *CacheKeyStruct) SessionSnapshotKey(examID, studentName, className string) string {
	return fmt.Sprintf("exam:%s:student:%s:class:%s:snapshot",
		examID, url.QueryEscape(studentName), url.QueryEscape(className))
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDefinitionKey returns the cache key for an exam's full definition,
// correct answers included. Only the session engine reads this.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's
// live violation feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
