// Package events encodes component events as Ethereum-style logs and
// decodes them back into named fields.
//
// Each component declares its events as an ABI JSON fragment. Indexed
// arguments become topics (topic0 is the event id), the remaining
// arguments are ABI-encoded into the log data.
package events

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned when decoding a log whose topic0 is not in the ABI.
var ErrUnknownEvent = errors.New("unknown event")

// MustParse parses an ABI definition, panicking on malformed input.
func MustParse(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("events: invalid abi: %v", err))
	}
	return parsed
}

// NewLog builds the log for event name emitted by address. Arguments are
// given in declaration order.
func NewLog(contract abi.ABI, address common.Address, name string, args ...interface{}) (*types.Log, error) {
	ev, ok := contract.Events[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	if len(args) != len(ev.Inputs) {
		return nil, fmt.Errorf("event %s: expected %d arguments, got %d", name, len(ev.Inputs), len(args))
	}

	var (
		indexed    [][]interface{}
		nonIndexed []interface{}
	)
	for i, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, []interface{}{args[i]})
		} else {
			nonIndexed = append(nonIndexed, args[i])
		}
	}

	topics := []common.Hash{ev.ID}
	if len(indexed) > 0 {
		rules, err := abi.MakeTopics(indexed...)
		if err != nil {
			return nil, fmt.Errorf("event %s: encoding topics: %w", name, err)
		}
		for _, rule := range rules {
			topics = append(topics, rule[0])
		}
	}

	data, err := ev.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		return nil, fmt.Errorf("event %s: encoding data: %w", name, err)
	}

	return &types.Log{Address: address, Topics: topics, Data: data}, nil
}

// Decoded is a log with its arguments unpacked.
type Decoded struct {
	Name   string
	Fields map[string]interface{}
}

// Decode unpacks lg using contract. Logs emitted by other components return
// ErrUnknownEvent.
func Decode(contract abi.ABI, lg *types.Log) (*Decoded, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("%w: anonymous log", ErrUnknownEvent)
	}
	ev, err := contract.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}

	fields := make(map[string]interface{})
	if err := ev.Inputs.UnpackIntoMap(fields, lg.Data); err != nil {
		return nil, fmt.Errorf("event %s: decoding data: %w", ev.Name, err)
	}

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("event %s: decoding topics: %w", ev.Name, err)
	}
	return &Decoded{Name: ev.Name, Fields: fields}, nil
}

// Registry decodes logs from any of several component ABIs.
type Registry struct {
	abis []abi.ABI
}

// NewRegistry creates a decoder over the given ABIs.
func NewRegistry(abis ...abi.ABI) *Registry {
	return &Registry{abis: abis}
}

// Decode tries each registered ABI in order.
func (r *Registry) Decode(lg *types.Log) (*Decoded, error) {
	for _, contract := range r.abis {
		decoded, err := Decode(contract, lg)
		if err == nil {
			return decoded, nil
		}
		if !errors.Is(err, ErrUnknownEvent) {
			return nil, err
		}
	}
	return nil, ErrUnknownEvent
}
