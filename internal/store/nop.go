package store

import (
	"context"

	"github.com/amishk599/leadradar/internal/model"
)

// NopLedger is used when run history is disabled. It records nothing.
type NopLedger struct{}

func NewNopLedger() *NopLedger { return &NopLedger{} }

func (NopLedger) RecordRun(context.Context, model.RunReport) error         { return nil }
func (NopLedger) ListRuns(context.Context, int) ([]model.RunReport, error) { return nil, nil }
