package recorder

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSurge(_ *SurgeEvent) error           { return nil }
func (n *NoopRecorder) RecordReward(_ *RewardEvent) error         { return nil }
func (n *NoopRecorder) RecordInvestment(_ *InvestmentEvent) error { return nil }
func (n *NoopRecorder) RecordViral(_ *ViralEvent) error           { return nil }
func (n *NoopRecorder) Close() error                              { return nil }
