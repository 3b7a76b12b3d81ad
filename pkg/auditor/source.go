package auditor

import (
	"context"

	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/types"
)

// RegistrySource observes workers through the coordinator's registry
// snapshot and attests their self-reported values. Deployments with direct
// worker visibility substitute their own StatusSource.
type RegistrySource struct {
	client *client.Client
}

// NewRegistrySource creates a registry-backed status source.
func NewRegistrySource(c *client.Client) *RegistrySource {
	return &RegistrySource{client: c}
}

// Observe implements StatusSource.
func (s *RegistrySource) Observe(ctx context.Context) ([]types.ReportedStatus, error) {
	workers, err := s.client.RegisteredWorkers(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]types.ReportedStatus, 0, len(workers))
	for _, w := range workers {
		statuses = append(statuses, w.Report())
	}
	return statuses, nil
}
