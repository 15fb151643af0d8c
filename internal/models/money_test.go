package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpy(t *testing.T, s string) Money {
	t.Helper()
	m, err := NewMoney(decimal.RequireFromString(s), "JPY")
	require.NoError(t, err)
	return m
}

func TestNewMoney(t *testing.T) {
	_, err := NewMoney(decimal.NewFromInt(-1), "JPY")
	assert.Error(t, err)

	_, err = NewMoney(decimal.NewFromInt(100), "YEN!")
	assert.Error(t, err)

	m, err := NewMoney(decimal.Zero, "JPY")
	require.NoError(t, err)
	assert.Equal(t, "JPY", m.Currency)
}

func TestMoneyCmp(t *testing.T) {
	a := jpy(t, "4980")
	b := jpy(t, "6000")

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	less, err := a.LessThan(b)
	require.NoError(t, err)
	assert.True(t, less)

	eq, err := a.LessThanOrEqual(jpy(t, "4980"))
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestMoneyCmpCrossCurrency(t *testing.T) {
	a := jpy(t, "1000")
	usd, err := NewMoney(decimal.NewFromInt(10), "USD")
	require.NoError(t, err)

	_, err = a.Cmp(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.LessThan(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "￥1234", jpy(t, "1234").String())

	usd, err := NewMoney(decimal.NewFromFloat(12.5), "USD")
	require.NoError(t, err)
	assert.Equal(t, "$12.50", usd.String())
}
