package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pledgeflow/internal/pledge"
)

func TestMarshalChain(t *testing.T) {
	tests := []struct {
		name  string
		chain []pledge.AdminID
		want  string
	}{
		{"nil", nil, "[]"},
		{"empty", []pledge.AdminID{}, "[]"},
		{"ordered", []pledge.AdminID{3, 1, 2}, "[3,1,2]"},
		{"large", []pledge.AdminID{1 << 60}, "[1152921504606846976]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalChain(tt.chain)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := unmarshalChain(got)
			require.NoError(t, err)
			if len(tt.chain) == 0 {
				assert.Nil(t, back)
			} else {
				assert.Equal(t, tt.chain, back)
			}
		})
	}
}

func TestUnmarshalChain_Invalid(t *testing.T) {
	for _, data := range []string{"", "{}", "[1.5]", "[-1]", `["x"]`} {
		_, err := unmarshalChain(data)
		assert.Error(t, err, "input %q", data)
	}
}

func TestUintText(t *testing.T) {
	v, err := parseUint("amount", formatUint(^uint64(0)))
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)

	_, err = parseUint("amount", "-3")
	assert.ErrorContains(t, err, "parse amount")
}

func TestEventID_BindsContent(t *testing.T) {
	ev := pledge.Event{Kind: pledge.EventTransfer, From: 1, To: 2, Amount: 10}
	a, err := eventID("tx-1", 0, ev)
	require.NoError(t, err)
	b, err := eventID("tx-1", 0, ev)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ev.Amount = 11
	c, err := eventID("tx-1", 0, ev)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := eventID("tx-1", 1, pledge.Event{Kind: pledge.EventTransfer, From: 1, To: 2, Amount: 10})
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}
