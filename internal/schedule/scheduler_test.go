package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchbooks/finch/internal/service"
)

type noTenantStorage struct {
	service.Storage
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DriftSchedule = "not a cron expression"

	s := NewScheduler(&noTenantStorage{}, nil, nil, nil, nil, cfg)
	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(&noTenantStorage{}, nil, nil, nil, nil, DefaultConfig())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestDefaultConfigParses(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.DriftSchedule)
	assert.NotEmpty(t, cfg.TrainingSchedule)
	assert.NotEmpty(t, cfg.PromotionSchedule)
}
