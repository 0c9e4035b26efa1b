package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditFileSinkRoundTrip(t *testing.T) {
	log := NewAuditLog(nil, t.TempDir())

	log.Write("join", "account created: alice@example.com")
	log.Writef("login", "email: %s", "alice@example.com")
	log.Write("note", "line one\nline two")

	entries := log.List(10)
	require.Len(t, entries, 3)

	// newest first
	assert.Equal(t, "note", entries[0].Event)
	assert.Equal(t, "line one line two", entries[0].Detail)
	assert.Equal(t, "login", entries[1].Event)
	assert.Equal(t, "email: alice@example.com", entries[1].Detail)
	assert.Equal(t, "join", entries[2].Event)
}

func TestAuditListTruncates(t *testing.T) {
	log := NewAuditLog(nil, t.TempDir())
	for i := 0; i < 5; i++ {
		log.Write("tick", "")
	}
	assert.Len(t, log.List(3), 3)
}

func TestAuditListEmpty(t *testing.T) {
	log := NewAuditLog(nil, t.TempDir())
	assert.Empty(t, log.List(10))
}
