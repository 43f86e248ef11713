// Package mdns advertises a running dropwatch status API on the local
// network so dashboards can find watchers without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service type for dropwatch status APIs.
	ServiceType = "_dropwatch._tcp"

	// APIVersion is the status API version advertised in TXT records.
	APIVersion = "v1"
)

// Instance describes the watcher being advertised.
type Instance struct {
	Name      string // defaults to the hostname
	Version   string
	Directory string
	Actions   int
}

// txtRecords builds the TXT records for inst.
func (inst Instance) txtRecords() []string {
	return []string{
		"version=" + inst.Version,
		"api=" + APIVersion,
		"directory=" + inst.Directory,
		"actions=" + strconv.Itoa(inst.Actions),
	}
}

// Service manages mDNS advertisement of the status API.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Start begins advertising the status API listening on port. Call it after
// the API is listening. Errors are usually environmental (no multicast in
// containers) and callers treat them as non-fatal.
func (s *Service) Start(inst Instance, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Restart
	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	if inst.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "dropwatch"
		}
		inst.Name = host
	}

	service, err := mdns.NewMDNSService(
		inst.Name,
		ServiceType,
		"", // .local
		"", // system hostname
		port,
		nil, // all interfaces
		inst.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{
		Zone: service,
	})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}

	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", inst.Name,
	)

	return nil
}

// Stop stops mDNS advertising.
// Safe to call multiple times or if not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}
