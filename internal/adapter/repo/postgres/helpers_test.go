package postgres_test

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// mockPool is a testify mock of postgres.PgxPool.
type mockPool struct{ mock.Mock }

func newMockPool(t interface {
	mock.TestingT
	Cleanup(func())
}) *mockPool {
	m := &mockPool{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ret := m.Called(append([]any{ctx, sql}, args...)...)
	tag, _ := ret.Get(0).(pgconn.CommandTag)
	return tag, ret.Error(1)
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ret := m.Called(append([]any{ctx, sql}, args...)...)
	return ret.Get(0).(pgx.Row)
}

// rowStub implements pgx.Row by copying a JSON document into the first
// destination.
type rowStub struct {
	doc []byte
	err error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*[]byte); ok {
		*p = r.doc
	}
	return nil
}
