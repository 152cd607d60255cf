package mocks

import (
	"context"
	"log/slog"

	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	ret := m.Called(ctx, name, args)
	var stdout, stderr []byte
	if v := ret.Get(0); v != nil {
		stdout = v.([]byte)
	}
	if v := ret.Get(1); v != nil {
		stderr = v.([]byte)
	}
	return stdout, stderr, ret.Error(2)
}
