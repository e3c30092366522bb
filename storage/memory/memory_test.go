package memory

import (
	"testing"

	"xdao.co/void/storage"
	"xdao.co/void/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	testkit.RunBlobStoreConformance(t, func(t *testing.T) storage.BlobStore {
		t.Helper()
		return New()
	})
}
