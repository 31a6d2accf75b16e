package storage

import (
	"testing"

	"github.com/google/uuid"
)

func TestSampleKey(t *testing.T) {
	id := uuid.MustParse("6f1c1f4e-2b8a-4f0e-9a55-0d6f3f1e2a10")
	if got := SampleKey(id, 2); got != "voiceprints/6f1c1f4e-2b8a-4f0e-9a55-0d6f3f1e2a10/2.wav" {
		t.Fatalf("unexpected key %s", got)
	}
}
