package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirestoreStorageConfig(t *testing.T) {
	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStorage(context.Background(), "", "(default)", "depo_users")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStorage(context.Background(), "test-project", "(default)", "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "collection is required")
	})
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "auth0|123", docID("auth0|123"))
	assert.Equal(t, "a_b_c", docID("a/b/c"))
}
