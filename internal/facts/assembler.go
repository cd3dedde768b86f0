package facts

import (
	"context"
	"fmt"
	"strings"

	"github.com/basket/astrobot/internal/jsonval"
	"github.com/basket/astrobot/internal/persistence"
)

// GenerationContext is what the generation loop shows the model about a
// session. Chart is nil when no chart was computed.
type GenerationContext struct {
	Chart   any
	Facts   Fact
	Summary string
}

// Assembler reads the generation context. It never writes.
type Assembler struct {
	db    *persistence.Store
	facts *Store
}

func NewAssembler(db *persistence.Store, facts *Store) *Assembler {
	return &Assembler{db: db, facts: facts}
}

func (a *Assembler) Assemble(ctx context.Context, sessionID int64) (GenerationContext, error) {
	sess, err := a.db.GetSession(ctx, sessionID)
	if err != nil {
		return GenerationContext{}, fmt.Errorf("assemble context: %w", err)
	}
	f, err := a.facts.Read(ctx, sessionID)
	if err != nil {
		return GenerationContext{}, fmt.Errorf("assemble context: %w", err)
	}
	summary, err := a.db.LoadSummary(ctx, sessionID)
	if err != nil {
		return GenerationContext{}, fmt.Errorf("assemble context: %w", err)
	}
	var chart any
	if strings.TrimSpace(sess.Chart) != "" {
		chart = jsonval.Normalize(sess.Chart)
	}
	return GenerationContext{Chart: chart, Facts: f, Summary: summary}, nil
}
