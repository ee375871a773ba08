package batch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/fiber-bom/internal/model"
)

func TestErrors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name  string
		err   error
		stage model.Stage
		msg   string
	}{
		{"fetch", &FetchError{Boundary: "B", Err: cause}, model.StageFetchingFeatures, "fetch B: cause"},
		{"aggregate", &AggregationError{Boundary: "B", Panic: cause}, model.StageAggregating, "aggregate B: cause"},
		{"write", &WriteError{Boundary: "B", Path: "out/B.xlsx", Err: cause}, model.StageWriting, "write B to out/B.xlsx: cause"},
		{"fatal", &FatalConfigError{Reason: "no template", Err: cause}, model.StageIdle, "batch: no template: cause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.stage, StageOf(wrapped))
		})
	}

	assert.True(t, IsFatal(fmt.Errorf("x: %w", &FatalConfigError{Reason: "r"})))
	assert.False(t, IsFatal(cause))
	assert.Equal(t, "batch: r", (&FatalConfigError{Reason: "r"}).Error())
	assert.NoError(t, (&AggregationError{Panic: "text"}).Unwrap())
}
