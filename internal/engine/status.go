package engine

import (
	"context"
	"fmt"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/feedback"
)

// EventLogStatus describes the approvals log.
type EventLogStatus struct {
	Count    int    `json:"count"`
	Size     int64  `json:"size_bytes"`
	Archives int    `json:"archives"`
	Path     string `json:"path"`
}

// RuleStoreStatus describes the learned-rules store.
type RuleStoreStatus struct {
	Rules   int    `json:"rules"`
	Learned int    `json:"learned"`
	Batches int    `json:"batches"`
	Backups int    `json:"backups"`
	Path    string `json:"path"`
}

// TierStatus couples a tier's current parameters with its owning component.
type TierStatus struct {
	Tier      catalog.Tier       `json:"tier"`
	Component string             `json:"component"`
	Params    catalog.TierParams `json:"params"`
}

// ThresholdsStatus is the current detection parameter state.
type ThresholdsStatus struct {
	Version int          `json:"version"`
	Tiers   []TierStatus `json:"tiers"`
}

// Status is the aggregate state of all engine stores.
type Status struct {
	Events     EventLogStatus             `json:"events"`
	Rules      RuleStoreStatus            `json:"rules"`
	Thresholds ThresholdsStatus           `json:"thresholds"`
	Health     []feedback.ComponentHealth `json:"health"`
}

// Status reports store sizes, tier parameters and per-component health.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	status := &Status{}

	count, err := e.approvals.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	size, err := e.approvals.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to size event log: %w", err)
	}
	archives, err := e.approvals.Archives()
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	status.Events = EventLogStatus{
		Count:    count,
		Size:     size,
		Archives: len(archives),
		Path:     e.approvals.Path(),
	}

	snapshot, err := e.rules.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	backups, err := e.rules.Backups()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	status.Rules = RuleStoreStatus{
		Rules:   len(snapshot.Rules),
		Learned: len(snapshot.Provenance),
		Batches: len(snapshot.Batches),
		Backups: len(backups),
		Path:    e.rules.Path(),
	}

	params, version, err := e.learner.Params()
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	status.Thresholds.Version = version
	for _, tier := range catalog.Tiers() {
		status.Thresholds.Tiers = append(status.Thresholds.Tiers, TierStatus{
			Tier:      tier,
			Component: tier.Component(),
			Params:    params[tier],
		})
	}

	for _, component := range catalog.Components() {
		health, err := e.tracker.Health(component, e.feedbackWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s health: %w", component, err)
		}
		status.Health = append(status.Health, *health)
	}

	return status, nil
}
