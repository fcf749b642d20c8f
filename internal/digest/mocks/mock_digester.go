package mocks

import (
	"io"

	"github.com/stretchr/testify/mock"
)

type MockDigester struct {
	mock.Mock
}

func (m *MockDigester) Hex(r io.Reader) (string, error) {
	args := m.Called(r)
	return args.String(0), args.Error(1)
}
