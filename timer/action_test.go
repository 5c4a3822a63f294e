package timer

import (
	"errors"
	"testing"

	"github.com/fixkme/timerwheel/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActions(t *testing.T) {
	acts := NewActions()
	noop := func(int64, int64) {}
	require.NoError(t, acts.RegisterFunc("mail.expire", noop))
	require.NoError(t, acts.RegisterFunc("mail.resend", noop))
	require.NoError(t, acts.RegisterFunc("buff.remove", noop))

	assert.True(t, errors.Is(acts.RegisterFunc("mail.expire", noop), errs.Duplicate))
	assert.True(t, errors.Is(acts.RegisterFunc("", noop), errs.InvalidArgument))
	assert.True(t, errors.Is(acts.Register("x", nil), errs.InvalidArgument))

	assert.Equal(t, 3, acts.Len())
	assert.Equal(t, []string{"mail.expire", "mail.resend"}, acts.Names("mail."))
	assert.Len(t, acts.Names(""), 3)

	var got int64
	require.NoError(t, acts.RegisterFunc("sum", func(id, data int64) { got = id + data }))
	a, ok := acts.Lookup("sum")
	require.True(t, ok)
	a.OnExpiry(2, 3)
	assert.Equal(t, int64(5), got)

	assert.True(t, acts.Unregister("sum"))
	assert.False(t, acts.Unregister("sum"))
	_, ok = acts.Lookup("sum")
	assert.False(t, ok)
}
