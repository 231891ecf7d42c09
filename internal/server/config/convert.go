package config

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/yndnr/sessiond/internal/cluster"
	"github.com/yndnr/sessiond/internal/core/event"
	"github.com/yndnr/sessiond/internal/core/service"
)

// ToServiceConfig maps the session, token, registration and event sections
// onto the handler configuration.
func (c *ServerConfig) ToServiceConfig() service.Config {
	return service.Config{
		ShortTermContainers:  c.Session.ShortTermContainers,
		ShortTermInterval:    c.Session.ShortTermInterval,
		LongTermEnabled:      c.Session.LongTermEnabled,
		LongTermContainers:   c.Session.LongTermContainers,
		LongTermInterval:     c.Session.LongTermInterval,
		MaxSessionsPerUser:   c.Session.MaxPerUser,
		RandomTokens:         c.Session.RandomTokens,
		RequestTokenLifetime: c.Tokens.Lifetime,
		RegistrationLifetime: c.Registration.Lifetime,
		Events: event.Config{
			BufferSize: c.Events.Buffer,
			DropIfFull: c.Events.DropIfFull,
		},
	}
}

// ToClusterConfig maps the cluster section onto the membership
// configuration, generating a node ID when none is configured.
func (c *ServerConfig) ToClusterConfig(logger *slog.Logger) cluster.Config {
	nodeID := c.Cluster.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
		logger.Info("generated cluster node ID", "node_id", nodeID)
	}
	return cluster.Config{
		NodeID:        nodeID,
		BindAddr:      c.Cluster.BindAddr,
		BindPort:      c.Cluster.BindPort,
		Seeds:         append([]string(nil), c.Cluster.Seeds...),
		BroadcastRate: c.Cluster.BroadcastRate,
		Logger:        logger,
	}
}
