package infrastructure

import (
	"testing"

	"chowfast/internal/service/ledger/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELTransitionPolicy(t *testing.T) {
	p, err := NewCELTransitionPolicy("next > current || next == Cancelled")
	require.NoError(t, err)

	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.StatusPaid, domain.StatusConfirmed, true},
		{domain.StatusConfirmed, domain.StatusCompleted, true},
		{domain.StatusCompleted, domain.StatusPaid, false},
		{domain.StatusConfirmed, domain.StatusConfirmed, false},
		{domain.StatusCompleted, domain.StatusCancelled, true},
	}
	for _, tt := range tests {
		got, err := p.Allow(tt.from, tt.to)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestCELTransitionPolicy_EmptyIsPermissive(t *testing.T) {
	p, err := NewCELTransitionPolicy("  ")
	require.NoError(t, err)
	ok, err := p.Allow(domain.StatusCompleted, domain.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCELTransitionPolicy_Invalid(t *testing.T) {
	_, err := NewCELTransitionPolicy("next >")
	assert.Error(t, err)

	_, err = NewCELTransitionPolicy("next + 1")
	assert.ErrorContains(t, err, "must evaluate to bool")

	_, err = NewCELTransitionPolicy("unknown_var == 1")
	assert.Error(t, err)
}

func TestRejectingRecipients(t *testing.T) {
	r := NewRejectingRecipients(" 0x2222222222222222222222222222222222222222 ", "0xABCDEFabcdef0123456789012345678901234567")
	assert.False(t, r.Accepts(alice))
	assert.False(t, r.Accepts("0xabcdefabcdef0123456789012345678901234567"))
	assert.True(t, r.Accepts(bob))
}

func TestMySQLOptions_DSN(t *testing.T) {
	dsn := MySQLOptions{Addr: "db:3306", User: "ledger", Password: "p@ss/word", DBName: "chowfast"}.DSN()
	assert.Contains(t, dsn, "ledger:p@ss/word@tcp(db:3306)/chowfast")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestGormModelMapping(t *testing.T) {
	o := &domain.Order{ID: 4, Buyer: alice, Total: 1100, CreatedAt: 77, Status: domain.StatusConfirmed}
	assert.Equal(t, o, toDomainOrder(fromDomainOrder(o)))

	env := &domain.Envelope{Seq: 9, EventID: "e", Kind: domain.KindPaymentReceived, OrderID: 4, EmittedAt: 77, Payload: []byte(`{"a":1}`)}
	assert.Equal(t, env, toDomainEnvelope(fromDomainEnvelope(env)))
}
