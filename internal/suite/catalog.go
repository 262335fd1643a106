// Package suite is the built-in workload catalog: CPU kernels, memory and
// concurrency patterns, file I/O, JSON handling, database access and
// network exchanges against the echo fixture.
package suite

import (
	"fmt"

	"github.com/studiowebux/benchkit/internal/echo"
	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/workload"
	"go.uber.org/zap"
)

// Fixture names declared by catalog workloads
const (
	FixtureEchoServer = "echo-server"
	FixtureSQLite     = "sqlite"
)

// Descriptors returns every catalog workload, grouped by area
func Descriptors() []workload.Descriptor {
	var all []workload.Descriptor
	all = append(all, cpuWorkloads()...)
	all = append(all, memoryWorkloads()...)
	all = append(all, concurrencyWorkloads()...)
	all = append(all, ioWorkloads()...)
	all = append(all, jsonWorkloads()...)
	all = append(all, databaseWorkloads()...)
	all = append(all, networkWorkloads()...)
	return all
}

// Register adds the catalog to reg
func Register(reg *workload.Registry) error {
	for _, d := range Descriptors() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register catalog: %w", err)
		}
	}
	return nil
}

// RegisterFixtures binds the fixtures the catalog declares. The echo server
// is returned so callers can reach its metrics.
func RegisterFixtures(m *fixture.Manager, server echo.Options, logger *zap.Logger) (*echo.Server, error) {
	srv := echo.NewServer(server, logger)
	if err := m.Register(FixtureEchoServer, srv); err != nil {
		return nil, err
	}
	if err := m.Register(FixtureSQLite, NewDatabase(DefaultSeed(), logger)); err != nil {
		return nil, err
	}
	return srv, nil
}
