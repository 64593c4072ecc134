// Package status tracks the phase of an import run and reports it
// periodically while the run is in progress.
package status

import (
	"sync/atomic"
)

//nolint:recvcheck // String() uses value receiver (called on State values), Get/Set use pointer receivers (atomic ops)
type State int32

const (
	Initial State = iota
	ParseDump
	PersistProducts
	PersistOrders
	PersistPayments
	Close
	ErrCleanup
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case ParseDump:
		return "parseDump"
	case PersistProducts:
		return "persistProducts"
	case PersistOrders:
		return "persistOrders"
	case PersistPayments:
		return "persistPayments"
	case Close:
		return "close"
	case ErrCleanup:
		return "errCleanup"
	}
	return "unknown"
}

func (s *State) Get() State {
	return State(atomic.LoadInt32((*int32)(s)))
}

func (s *State) Set(newState State) {
	atomic.StoreInt32((*int32)(s), int32(newState))
}
