package transport

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// MockCodec implements wire.Codec for testing
type MockCodec struct {
	mock.Mock
}

func (m *MockCodec) DecodeRequest(data []byte) (domain.Request, error) {
	args := m.Called(data)
	return args.Get(0).(domain.Request), args.Error(1)
}

func (m *MockCodec) EncodeResponse(req domain.Request, resp domain.Response) ([]byte, error) {
	args := m.Called(req, resp)
	return args.Get(0).([]byte), args.Error(1)
}

// MockHandler implements RequestHandler for testing
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) HandleRequest(ctx context.Context, req domain.Request) (domain.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Response), args.Error(1)
}

// panicHandler panics on every request.
type panicHandler struct{}

func (panicHandler) HandleRequest(context.Context, domain.Request) (domain.Response, error) {
	panic("boom")
}
