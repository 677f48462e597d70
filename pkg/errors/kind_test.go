package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cause := stderrors.New("execution reverted")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", cause, KindUnknown},
		{"kinded", WithKind(KindTransactionFailed, cause, "submit pledge"), KindTransactionFailed},
		{"wrapped kinded", Wrap(NewKind(KindUserRejected, "denied"), "connect"), KindUserRejected},
		{"fmt wrapped", fmt.Errorf("outer: %w", NewKind(KindBusy, "busy")), KindBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWithKindPreservesCause(t *testing.T) {
	cause := stderrors.New("insufficient funds")
	err := WithKind(KindTransactionFailed, cause, "submit launch")

	require.Error(t, err)
	assert.True(t, Is(err, cause))
	assert.Equal(t, "submit launch: insufficient funds", err.Error())
	assert.Equal(t, cause, Cause(err))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil, "x"))

	kinded := NewKind(KindMetadataUnavailable, "no abi")
	assert.Equal(t, kinded, Classify(kinded, "fetch"))

	plain := stderrors.New("boom")
	classified := Classify(plain, "fetch")
	assert.Equal(t, KindUnknown, KindOf(classified))
	assert.Contains(t, classified.Error(), "boom")
	assert.True(t, IsKind(classified, KindUnknown))
}

func TestKindRecoverable(t *testing.T) {
	assert.True(t, KindUserRejected.Recoverable())
	assert.True(t, KindAuthorizationPending.Recoverable())
	assert.False(t, KindTransactionFailed.Recoverable())
	assert.False(t, KindUnknown.Recoverable())
}
