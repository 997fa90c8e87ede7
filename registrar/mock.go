package registrar

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the interfaces.Registry interface
type MockRegistry struct {
	mock.Mock
}

// Get mocks the Get method
func (m *MockRegistry) Get(key common.Hash) common.Hash {
	args := m.Called(key)
	return args.Get(0).(common.Hash)
}

// GetMany mocks the GetMany method
func (m *MockRegistry) GetMany(keys []common.Hash) []common.Hash {
	args := m.Called(keys)
	return args.Get(0).([]common.Hash)
}

// ListContains mocks the ListContains method
func (m *MockRegistry) ListContains(list common.Hash, account common.Address) bool {
	args := m.Called(list, account)
	return args.Bool(0)
}

// ListContainsAll mocks the ListContainsAll method
func (m *MockRegistry) ListContainsAll(list common.Hash, accounts []common.Address) bool {
	args := m.Called(list, accounts)
	return args.Bool(0)
}

// ListMembers mocks the ListMembers method
func (m *MockRegistry) ListMembers(list common.Hash) []common.Address {
	args := m.Called(list)
	return args.Get(0).([]common.Address)
}

// AddToList mocks the AddToList method, recording the caller as the first argument
func (m *MockRegistry) AddToList(tx *ledger.Tx, list common.Hash, account common.Address) error {
	args := m.Called(tx.Sender(), list, account)
	return args.Error(0)
}

// RemoveFromList mocks the RemoveFromList method, recording the caller as the first argument
func (m *MockRegistry) RemoveFromList(tx *ledger.Tx, list common.Hash, account common.Address) error {
	args := m.Called(tx.Sender(), list, account)
	return args.Error(0)
}

// UpdateConfig mocks the UpdateConfig method, recording the caller as the first argument
func (m *MockRegistry) UpdateConfig(tx *ledger.Tx, key, value common.Hash) error {
	args := m.Called(tx.Sender(), key, value)
	return args.Error(0)
}

// Reset mocks the Reset method, recording the caller as the first argument
func (m *MockRegistry) Reset(tx *ledger.Tx) error {
	args := m.Called(tx.Sender())
	return args.Error(0)
}

var _ interfaces.Registry = (*MockRegistry)(nil)
