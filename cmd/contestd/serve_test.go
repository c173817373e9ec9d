package main

import (
	"testing"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/config"
	"github.com/stretchr/testify/assert"
)

func TestConsumerGroupPerReplicaWhenRelayed(t *testing.T) {
	cfg := &config.Config{}
	cfg.Kafka.GroupID = "contest-engine"
	cfg.Server.InstanceID = "engine-2"

	assert.Equal(t, "contest-engine", consumerGroup(cfg))

	cfg.Redis.Enabled = true
	assert.Equal(t, "contest-engine-engine-2", consumerGroup(cfg))
}
