package mocks_test

import (
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/jobs"
	"github.com/xkilldash9x/swapflow/internal/mocks"
)

var (
	_ config.Interface = (*mocks.MockConfig)(nil)
	_ jobs.API         = (*mocks.MockJobAPI)(nil)
)
