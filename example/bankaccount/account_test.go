package bankaccount_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/example/bankaccount"
)

type lenientServices struct{}

func (lenientServices) ValidateAccountNumber(_ context.Context, accountNumber string) bool {
	return len(accountNumber) >= 5
}

func openedAccount(t *testing.T, balance int64) *bankaccount.Account {
	t.Helper()

	id, err := eventstore.NewStreamID(bankaccount.Namespace, "4711")
	require.NoError(t, err)

	account := bankaccount.NewAccount(id)
	account.Apply(bankaccount.AccountOpened{AccountNumber: "ACC-001"})
	if balance > 0 {
		account.Apply(bankaccount.Deposited{Amount: balance})
	}

	return account
}

func Test_Handle_OpenAccount(t *testing.T) {
	id, err := eventstore.NewStreamID(bankaccount.Namespace, "4711")
	require.NoError(t, err)

	t.Run("valid_account_number_opens", func(t *testing.T) {
		account := bankaccount.NewAccount(id)

		events, err := account.Handle(context.Background(), bankaccount.OpenAccount{AccountNumber: "ACC-001"}, lenientServices{})

		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, bankaccount.AccountOpened{AccountNumber: "ACC-001"}, events[0])
	})

	t.Run("short_account_number_is_rejected", func(t *testing.T) {
		account := bankaccount.NewAccount(id)

		_, err := account.Handle(context.Background(), bankaccount.OpenAccount{AccountNumber: "A1"}, lenientServices{})

		require.Error(t, err)
		assert.Equal(t, eserrors.KindBusinessRuleViolation, eserrors.KindOf(err))
	})

	t.Run("reopening_is_rejected", func(t *testing.T) {
		account := openedAccount(t, 0)

		_, err := account.Handle(context.Background(), bankaccount.OpenAccount{AccountNumber: "ACC-002"}, lenientServices{})

		require.Error(t, err)
		assert.Equal(t, eserrors.KindBusinessRuleViolation, eserrors.KindOf(err))
	})
}

func Test_Handle_DepositAndWithdraw(t *testing.T) {
	tests := []struct {
		name         string
		balance      int64
		command      bankaccount.Command
		expectErr    bool
		expectedKind eserrors.Kind
		expected     []bankaccount.Event
	}{
		{
			name:     "deposit_produces_deposited",
			balance:  0,
			command:  bankaccount.Deposit{Amount: 100},
			expected: []bankaccount.Event{bankaccount.Deposited{Amount: 100}},
		},
		{
			name:         "non_positive_deposit_is_invalid",
			balance:      0,
			command:      bankaccount.Deposit{Amount: 0},
			expectErr:    true,
			expectedKind: eserrors.KindInvalidInput,
		},
		{
			name:     "covered_withdrawal_produces_withdrawn",
			balance:  100,
			command:  bankaccount.Withdraw{Amount: 40},
			expected: []bankaccount.Event{bankaccount.Withdrawn{Amount: 40}},
		},
		{
			name:         "overdraft_violates_business_rule",
			balance:      30,
			command:      bankaccount.Withdraw{Amount: 40},
			expectErr:    true,
			expectedKind: eserrors.KindBusinessRuleViolation,
		},
		{
			name:         "non_positive_withdrawal_is_invalid",
			balance:      100,
			command:      bankaccount.Withdraw{Amount: -1},
			expectErr:    true,
			expectedKind: eserrors.KindInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			account := openedAccount(t, tc.balance)

			events, err := account.Handle(context.Background(), tc.command, lenientServices{})

			if tc.expectErr {
				require.Error(t, err)
				assert.Equal(t, tc.expectedKind, eserrors.KindOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, events)
		})
	}
}

func Test_Handle_RequiresOpenAccount(t *testing.T) {
	id, err := eventstore.NewStreamID(bankaccount.Namespace, "4711")
	require.NoError(t, err)
	account := bankaccount.NewAccount(id)

	for _, command := range []bankaccount.Command{bankaccount.Deposit{Amount: 10}, bankaccount.Withdraw{Amount: 10}} {
		_, err := account.Handle(context.Background(), command, lenientServices{})

		require.Error(t, err)
		assert.Equal(t, eserrors.KindBusinessRuleViolation, eserrors.KindOf(err))
	}
}

func Test_Handle_NeverMutatesState(t *testing.T) {
	account := openedAccount(t, 100)

	_, err := account.Handle(context.Background(), bankaccount.Withdraw{Amount: 40}, lenientServices{})

	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "Handle must not fold events itself")
}

func Test_UnmarshalEvent_RoundTripsEveryVariant(t *testing.T) {
	events := []bankaccount.Event{
		bankaccount.AccountOpened{AccountNumber: "ACC-001"},
		bankaccount.Deposited{Amount: 100},
		bankaccount.Withdrawn{Amount: 40},
	}

	for _, original := range events {
		storable, err := eventstore.StorableEventFrom(original)
		require.NoError(t, err)

		decoded, err := bankaccount.UnmarshalEvent(storable.EventType, storable.PayloadJSON)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	}
}

func Test_UnmarshalEvent_RejectsUnknownType(t *testing.T) {
	_, err := bankaccount.UnmarshalEvent("AccountFrozen", []byte(`{}`))

	require.Error(t, err)
	assert.Equal(t, eserrors.KindInvalidInput, eserrors.KindOf(err))
}

func Test_Apply_FoldsEventsInOrder(t *testing.T) {
	account := openedAccount(t, 0)

	for _, event := range []bankaccount.Event{
		bankaccount.Deposited{Amount: 100},
		bankaccount.Withdrawn{Amount: 30},
		bankaccount.Deposited{Amount: 5},
	} {
		account.Apply(event)
	}

	assert.Equal(t, int64(75), account.Balance)
}
