package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTopic_TableName(t *testing.T) {
	topic := Topic{}
	assert.Equal(t, "forum", topic.TableName())
}

func TestTopic_SetCreated_OnlyOnce(t *testing.T) {
	topic := Topic{URL: "u"}
	original := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.True(t, topic.SetCreated(original))
	assert.False(t, topic.SetCreated(original.Add(48*time.Hour)))
	assert.Equal(t, original, topic.Created.Time)
	assert.True(t, topic.HasCreated())
}
