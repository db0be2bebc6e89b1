package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                { return s.name }
func (s stubChecker) Check(context.Context) error { return s.err }

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		critical error
		optional error
		want     Status
	}{
		{"all healthy", nil, nil, StatusHealthy},
		{"optional failing", nil, errors.New("down"), StatusDegraded},
		{"critical failing", errors.New("down"), nil, StatusUnhealthy},
		{"both failing", errors.New("down"), errors.New("down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(stubChecker{name: "kafka", err: tt.critical})
			r.RegisterOptional(stubChecker{name: "redis", err: tt.optional})

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
			if tt.optional != nil {
				assert.Equal(t, StatusDegraded, h.Checks["redis"].Status)
				assert.Equal(t, "down", h.Checks["redis"].Message)
			}
		})
	}
}

func TestKafkaChecker(t *testing.T) {
	c := NewKafkaChecker(pingerFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return errors.New("no brokers")
	}))

	err := c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka ping failed")
}

func TestPostgreSQLChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.NoError(t, NewPostgreSQLChecker(db).Check(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, NewPostgreSQLChecker(db).Check(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
