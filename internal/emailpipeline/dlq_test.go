package emailpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryDeadLetterStoreRecordsAndCaps(t *testing.T) {
	s := NewMemoryDeadLetterStore(1)
	s.Record(context.Background(), Message{From: "a@example.com", Subject: "first"}, "forward-failed")
	s.Record(context.Background(), Message{From: "b@example.com", Subject: "second"}, "spam-rejected")

	entries := s.List()
	assert.Len(t, entries, 1)
	assert.Equal(t, "b@example.com", entries[0].From)
	assert.Equal(t, "spam-rejected", entries[0].Reason)
}

func TestMemoryDeadLetterStoreDefaultsCapacity(t *testing.T) {
	s := NewMemoryDeadLetterStore(0)
	assert.Equal(t, 200, s.cap)
}
