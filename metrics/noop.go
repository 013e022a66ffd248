package metrics

import "github.com/mantlenetworkio/dispute-engine/game/types"

type NoopMetricsImpl struct{}

var _ Metricer = (*NoopMetricsImpl)(nil)

var NoopMetrics Metricer = new(NoopMetricsImpl)

func (*NoopMetricsImpl) RecordGameCreated(types.GameType) {}

func (*NoopMetricsImpl) RecordGameMove() {}

func (*NoopMetricsImpl) RecordGameStep() {}

func (*NoopMetricsImpl) RecordClaimResolved() {}

func (*NoopMetricsImpl) RecordGameResolved(types.GameStatus) {}

func (*NoopMetricsImpl) RecordBondClaimed(uint64) {}

func (*NoopMetricsImpl) RecordAnchorUpdated(types.GameType) {}
