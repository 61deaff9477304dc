// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Exchange() config.ExchangeConfig {
	args := m.Called()
	return args.Get(0).(config.ExchangeConfig)
}

func (m *MockConfig) Profile() config.ProfileConfig {
	args := m.Called()
	return args.Get(0).(config.ProfileConfig)
}

func (m *MockConfig) Jobs() config.JobsConfig {
	args := m.Called()
	return args.Get(0).(config.JobsConfig)
}

func (m *MockConfig) State() config.StateConfig {
	args := m.Called()
	return args.Get(0).(config.StateConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Defaults() config.DefaultsConfig {
	args := m.Called()
	return args.Get(0).(config.DefaultsConfig)
}

func (m *MockConfig) MCP() config.MCPConfig {
	args := m.Called()
	return args.Get(0).(config.MCPConfig)
}

// -- Job Service Mock --

// MockJobAPI mocks jobs.API.
type MockJobAPI struct {
	mock.Mock
}

func (m *MockJobAPI) Submit(ctx context.Context, req schemas.ExchangeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockJobAPI) PollStatus(ctx context.Context, jobID string) (schemas.JobRecord, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(schemas.JobRecord), args.Error(1)
}

func (m *MockJobAPI) FetchOutput(ctx context.Context, jobID string) (schemas.AutomationResult, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(schemas.AutomationResult), args.Error(1)
}
