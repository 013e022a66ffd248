// Package metrics instruments the dispute engine. The Metricer interface is
// threaded through the engine components; production wiring uses the
// prometheus implementation and tests use NoopMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mantlenetworkio/dispute-engine/game/types"
)

const Namespace = "dispute_engine"

type Metricer interface {
	RecordGameCreated(gameType types.GameType)
	RecordGameMove()
	RecordGameStep()
	RecordClaimResolved()
	RecordGameResolved(status types.GameStatus)
	RecordBondClaimed(amount uint64)
	RecordAnchorUpdated(gameType types.GameType)
}

type Metrics struct {
	registry *prometheus.Registry
	factory  Factory

	gamesCreated   *prometheus.CounterVec
	moves          prometheus.Counter
	steps          prometheus.Counter
	claimsResolved prometheus.Counter
	gamesResolved  *prometheus.CounterVec
	bondsClaimed   prometheus.Counter
	anchorUpdates  *prometheus.CounterVec
}

var _ Metricer = (*Metrics)(nil)

// Factory mirrors the prometheus auto-registering factory pattern so metric
// construction and registration cannot drift apart.
type Factory interface {
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec
}

type promFactory struct {
	registry *prometheus.Registry
}

func (f *promFactory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.registry.MustRegister(c)
	return c
}

func (f *promFactory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labelNames)
	f.registry.MustRegister(c)
	return c
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := &promFactory{registry: registry}
	return &Metrics{
		registry: registry,
		factory:  factory,
		gamesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "games_created",
			Help:      "Number of dispute games created, labelled by game type",
		}, []string{"game_type"}),
		moves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "moves",
			Help:      "Number of attack/defend moves made across all games",
		}),
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps",
			Help:      "Number of VM steps executed across all games",
		}),
		claimsResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "claims_resolved",
			Help:      "Number of individual claims resolved",
		}),
		gamesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "games_resolved",
			Help:      "Number of games resolved, labelled by final status",
		}, []string{"status"}),
		bondsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bonds_claimed",
			Help:      "Total bond value claimed, in wei",
		}),
		anchorUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "anchor_updates",
			Help:      "Number of accepted anchor state updates, labelled by game type",
		}, []string{"game_type"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordGameCreated(gameType types.GameType) {
	m.gamesCreated.WithLabelValues(gameType.String()).Inc()
}

func (m *Metrics) RecordGameMove() {
	m.moves.Inc()
}

func (m *Metrics) RecordGameStep() {
	m.steps.Inc()
}

func (m *Metrics) RecordClaimResolved() {
	m.claimsResolved.Inc()
}

func (m *Metrics) RecordGameResolved(status types.GameStatus) {
	m.gamesResolved.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) RecordBondClaimed(amount uint64) {
	m.bondsClaimed.Add(float64(amount))
}

func (m *Metrics) RecordAnchorUpdated(gameType types.GameType) {
	m.anchorUpdates.WithLabelValues(gameType.String()).Inc()
}
