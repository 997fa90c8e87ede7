// Package registrar implements the governed address and configuration
// registry.
//
// The registry holds named address lists and a flat bytes32 key/value
// config map. Reads are open to everyone; every mutation is gated on the
// caller being the bound governor, so registry state only changes through
// executed proposals.
//
// # Operations
//
//	Get(key) / GetMany(keys)           config lookups, zero value when unset
//	ListContains(list, account)        O(1) membership
//	ListContainsAll(list, accounts)    AND over the batch, true when empty
//	AddToList / RemoveFromList         idempotent, governor only
//	UpdateConfig(key, value)           last write wins, governor only
//	Reset()                            restore the bootstrap state, governor only
//
// Lists are separate instances created on first use by a list.Factory at
// addresses derived from the list id. The registrar owns every list it
// creates.
//
// # Events
//
// AddressAddedToList and AddressRemovedFromList are only emitted when
// membership actually changes. ConfigUpdated is emitted for every update,
// and ResetExecuted once per reset.
//
// # Usage Example
//
//	r := registrar.New(registrar.Config{
//	    Address:   registrarAddr,
//	    Admin:     deployerAccount,
//	    Bootstrap: registrar.State{Lists: lists, Config: config},
//	    Log:       logger,
//	}, list.NewFactory(factoryAddr))
//
//	_, err := l.Apply(ctx, deployerAccount, func(tx *ledger.Tx) error {
//	    return r.Initialize(tx, governorAddr)
//	})
package registrar
