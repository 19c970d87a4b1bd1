package feed

import (
	"math/rand/v2"

	"github.com/citizenintel/portal/internal/model"
)

// Batch describes the page an Enricher is looking at.
type Batch struct {
	// Page is the zero-based page index the batch was fetched at.
	Page int
	// First is set on the first successful merge of a filter generation.
	First bool
}

// Enricher annotates newly merged leads. It only ever sees the leads that
// survived deduplication in the current merge, never earlier pages.
type Enricher interface {
	Enrich(b Batch, leads []model.Lead)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(b Batch, leads []model.Lead)

func (f EnricherFunc) Enrich(b Batch, leads []model.Lead) { f(b, leads) }

// PinFirst pins the head of the first page when it is critical or an appeal.
var PinFirst Enricher = EnricherFunc(func(b Batch, leads []model.Lead) {
	if b.Page != 0 || !b.First || len(leads) == 0 {
		return
	}
	head := &leads[0]
	if head.Priority == model.PriorityCritical || head.IsAppeal() {
		head.IsPinned = true
	}
})

// DemoCounts fills in synthetic response counts for demo deployments.
type DemoCounts struct {
	Min, Spread int
}

func (d DemoCounts) Enrich(_ Batch, leads []model.Lead) {
	spread := d.Spread
	if spread <= 0 {
		spread = 50
	}
	for i := range leads {
		if leads[i].ResponseCount == 0 {
			leads[i].ResponseCount = d.Min + rand.IntN(spread)
		}
	}
}
