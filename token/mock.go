package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/stretchr/testify/mock"
)

// MockToken mocks the token capability interfaces. It is used to inject
// transfer failures and callbacks into components under test.
type MockToken struct {
	mock.Mock
}

func (m *MockToken) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *MockToken) Decimals() uint8 {
	args := m.Called()
	return args.Get(0).(uint8)
}

func (m *MockToken) TotalSupply() *big.Int {
	args := m.Called()
	return args.Get(0).(*big.Int)
}

func (m *MockToken) BalanceOf(account common.Address) *big.Int {
	args := m.Called(account)
	return args.Get(0).(*big.Int)
}

func (m *MockToken) Allowance(owner, spender common.Address) *big.Int {
	args := m.Called(owner, spender)
	return args.Get(0).(*big.Int)
}

// Transfer mocks Transfer. The sender is passed to the mock as the first argument.
func (m *MockToken) Transfer(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	args := m.Called(tx.Sender(), to, amount)
	return args.Error(0)
}

// TransferFrom mocks TransferFrom. The spender is passed to the mock as the first argument.
func (m *MockToken) TransferFrom(tx *ledger.Tx, from, to common.Address, amount *big.Int) error {
	args := m.Called(tx.Sender(), from, to, amount)
	return args.Error(0)
}

func (m *MockToken) Approve(tx *ledger.Tx, spender common.Address, amount *big.Int) error {
	args := m.Called(tx.Sender(), spender, amount)
	return args.Error(0)
}

func (m *MockToken) PastVotes(account common.Address, timepoint uint64) *big.Int {
	args := m.Called(account, timepoint)
	return args.Get(0).(*big.Int)
}

func (m *MockToken) PastTotalSupply(timepoint uint64) *big.Int {
	args := m.Called(timepoint)
	return args.Get(0).(*big.Int)
}

func (m *MockToken) Mint(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	args := m.Called(tx.Sender(), to, amount)
	return args.Error(0)
}

var _ interfaces.RewardToken = (*MockToken)(nil)
