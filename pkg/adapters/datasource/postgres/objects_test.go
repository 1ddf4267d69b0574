package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTriggerType(t *testing.T) {
	tests := []struct {
		tgtype     int16
		wantTiming string
		wantEvent  string
	}{
		{1 | triggerBefore | triggerInsert, "BEFORE", "INSERT"},
		{triggerInsert | triggerUpdate, "AFTER", "INSERT OR UPDATE"},
		{1 | triggerInstead | triggerDelete, "INSTEAD OF", "DELETE"},
		{triggerTruncate, "AFTER", "TRUNCATE"},
	}
	for _, tt := range tests {
		timing, event := decodeTriggerType(tt.tgtype)
		assert.Equal(t, tt.wantTiming, timing, "tgtype %d", tt.tgtype)
		assert.Equal(t, tt.wantEvent, event, "tgtype %d", tt.tgtype)
	}
}

func TestCustomTypeCategory(t *testing.T) {
	assert.Equal(t, "enum", customTypeCategory("e"))
	assert.Equal(t, "domain", customTypeCategory("d"))
	assert.Equal(t, "composite", customTypeCategory("c"))
	assert.Equal(t, "range", customTypeCategory("r"))
}
