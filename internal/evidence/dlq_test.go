package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

func TestDLQBufferRecordsAndCaps(t *testing.T) {
	b := newDLQBuffer(2)
	b.record(DLQEntry{ChittyID: models.Identifier("CHITTY-EVID-0001-AA")})
	b.record(DLQEntry{ChittyID: models.Identifier("CHITTY-EVID-0002-AA")})
	b.record(DLQEntry{ChittyID: models.Identifier("CHITTY-EVID-0003-AA")})

	entries := b.List()
	assert.Len(t, entries, 2)
	assert.Equal(t, models.Identifier("CHITTY-EVID-0002-AA"), entries[0].ChittyID)
	assert.Equal(t, models.Identifier("CHITTY-EVID-0003-AA"), entries[1].ChittyID)
}

func TestDLQBufferListIsASnapshot(t *testing.T) {
	b := newDLQBuffer(10)
	b.record(DLQEntry{ChittyID: models.Identifier("CHITTY-EVID-0001-AA")})

	snapshot := b.List()
	b.record(DLQEntry{ChittyID: models.Identifier("CHITTY-EVID-0002-AA")})

	assert.Len(t, snapshot, 1)
	assert.Len(t, b.List(), 2)
}
