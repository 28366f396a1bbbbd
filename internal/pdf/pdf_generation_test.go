package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unveil/internal/models"
)

func TestCaseDossierWithCoreFont(t *testing.T) {
	g := NewDocumentGenerator("does/not/exist.ttf")
	c := &models.Case{
		ID:          42,
		Name:        "José Müller",
		Company:     "Acme",
		Actions:     "fake invoices",
		Description: "Sent invoices for services that were never delivered.",
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	c.ApplyVote(models.VoteGuilty, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, g.CaseDossier(&buf, c, time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestCaseDossierNilCase(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewDocumentGenerator("").CaseDossier(&buf, nil, time.Now()))
}
