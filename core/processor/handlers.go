package processor

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/core/gastree"
	"github.com/gearbox/corevm/core/hostcall"
	"github.com/gearbox/corevm/core/memory"
)

// OutboundMessage is one message queued by a dispatch's send/send_commit
// handlers, drained into the Outcome a collaborator applies (§2's "the
// journal the collaborator applies").
type OutboundMessage struct {
	Destination common.ProgramID
	Payload     []byte
	Value       uint256.Int
}

// pendingSend accumulates one gr_send_init/gr_send_push/gr_send_commit
// builder's payload between calls, keyed by the handle the guest holds.
type pendingSend struct {
	payload []byte
}

// dispatchState is the mutable, per-dispatch state the registered handlers
// close over: the incoming message's own payload, the gas-tree node it is
// billed against, and everything the handlers accumulate for the
// collaborator to drain afterwards (§4.H's families operate against this
// instead of touching the driver directly).
type dispatchState struct {
	messageID common.MessageID
	node      common.NodeID
	payload   []byte
	replyToID common.MessageID

	tree   *gastree.Tree
	ledger *gastree.Ledger

	sendBuilders []*pendingSend
	createNonce  uint64

	replyPayload []byte
	replyValue   uint256.Int
	replySent    bool

	outbox []OutboundMessage

	waiting bool
	exited  bool
}

// registerHandlers binds the message_io, scheduling, reservation and
// creation families against d, so core/gastree's Tree and Ledger — Component
// E/F — have a live call site instead of only hostcall_test.go's. Families
// not covered here (env_query, debug, allocation) are unrelated to this
// dispatch's gas-tree/reservation bookkeeping and are left to whichever
// caller wires them next.
func registerHandlers(d *hostcall.Dispatcher, dc *dispatchState) {
	registerMessageIO(d, dc)
	registerScheduling(d, dc)
	registerReservation(d, dc)
	registerCreation(d, dc)
}

func putU32(mem *memory.AccessManager, w memory.Write, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Put(mem.Mem(), b[:])
}

func registerMessageIO(d *hostcall.Dispatcher, dc *dispatchState) {
	// gr_read(at, len, buffer_ptr, err_ptr)
	d.Register("env", "gr_read", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		at, ln, bufPtr := uint32(args[0]), uint32(args[1]), uint32(args[2])
		if uint64(at)+uint64(ln) > uint64(len(dc.payload)) {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		w := mem.RegisterWrite(bufPtr, ln)
		w.Put(mem.Mem(), dc.payload[at:at+ln])
		return nil, nil
	})

	// gr_send(program_ptr, payload_ptr, len, value, err_mid_ptr)
	d.Register("env", "gr_send", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		progPtr, payloadPtr, ln := uint32(args[0]), uint32(args[1]), uint32(args[2])
		value := args[3]
		progRead := mem.RegisterRead(progPtr, common.HashLength)
		payloadRead := mem.RegisterRead(payloadPtr, ln)
		dest := common.BytesToHash(progRead.Bytes(mem.Mem()))
		payload := append([]byte(nil), payloadRead.Bytes(mem.Mem())...)
		dc.outbox = append(dc.outbox, OutboundMessage{Destination: dest, Payload: payload, Value: *uint256.NewInt(value)})
		return nil, nil
	})

	// gr_send_init(handle_out_ptr)
	d.Register("env", "gr_send_init", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		handle := uint32(len(dc.sendBuilders))
		dc.sendBuilders = append(dc.sendBuilders, &pendingSend{})
		w := mem.RegisterWrite(uint32(args[0]), 4)
		putU32(mem, w, handle)
		return nil, nil
	})

	// gr_send_push(handle, payload_ptr, len, err_ptr)
	d.Register("env", "gr_send_push", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		handle, payloadPtr, ln := uint32(args[0]), uint32(args[1]), uint32(args[2])
		if int(handle) >= len(dc.sendBuilders) || dc.sendBuilders[handle] == nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		r := mem.RegisterRead(payloadPtr, ln)
		dc.sendBuilders[handle].payload = append(dc.sendBuilders[handle].payload, r.Bytes(mem.Mem())...)
		return nil, nil
	})

	// gr_send_commit(handle, program_ptr, value, err_mid_ptr)
	d.Register("env", "gr_send_commit", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		handle, progPtr := uint32(args[0]), uint32(args[1])
		value := args[2]
		if int(handle) >= len(dc.sendBuilders) || dc.sendBuilders[handle] == nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		progRead := mem.RegisterRead(progPtr, common.HashLength)
		dest := common.BytesToHash(progRead.Bytes(mem.Mem()))
		b := dc.sendBuilders[handle]
		dc.sendBuilders[handle] = nil
		dc.outbox = append(dc.outbox, OutboundMessage{Destination: dest, Payload: b.payload, Value: *uint256.NewInt(value)})
		return nil, nil
	})

	// gr_reply(payload_ptr, len, value, err_ptr)
	d.Register("env", "gr_reply", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		payloadPtr, ln := uint32(args[0]), uint32(args[1])
		value := args[2]
		r := mem.RegisterRead(payloadPtr, ln)
		dc.replyPayload = append(append([]byte(nil), dc.replyPayload...), r.Bytes(mem.Mem())...)
		dc.replyValue = *uint256.NewInt(value)
		dc.replySent = true
		return nil, nil
	})

	// gr_reply_push(payload_ptr, len, err_ptr)
	d.Register("env", "gr_reply_push", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		payloadPtr, ln := uint32(args[0]), uint32(args[1])
		r := mem.RegisterRead(payloadPtr, ln)
		dc.replyPayload = append(dc.replyPayload, r.Bytes(mem.Mem())...)
		return nil, nil
	})

	// gr_reply_commit(value, err_ptr)
	d.Register("env", "gr_reply_commit", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.replyValue = *uint256.NewInt(args[0])
		dc.replySent = true
		return nil, nil
	})

	// gr_reply_to(out_ptr)
	d.Register("env", "gr_reply_to", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		if dc.replyToID.IsZero() {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		w := mem.RegisterWrite(uint32(args[0]), common.HashLength)
		w.Put(mem.Mem(), dc.replyToID.Bytes())
		return nil, nil
	})

	// gr_reply_code(out_ptr) / gr_signal_code(out_ptr) / gr_signal_from(out_ptr):
	// none of these apply outside a handle_reply/handle_signal dispatch, and
	// this driver doesn't yet model either incoming code — they report "not
	// applicable" rather than fabricate a code.
	notApplicable := func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		return nil, &hostcall.FallibleError{Code: 1}
	}
	d.Register("env", "gr_reply_code", notApplicable)
	d.Register("env", "gr_signal_code", notApplicable)
	d.Register("env", "gr_signal_from", notApplicable)
}

func registerScheduling(d *hostcall.Dispatcher, dc *dispatchState) {
	d.Register("env", "gr_wait", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.waiting = true
		return nil, nil
	})
	d.Register("env", "gr_wait_for", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.waiting = true
		return nil, nil
	})
	d.Register("env", "gr_wait_up_to", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.waiting = true
		return nil, nil
	})
	// gr_wake(message_id_ptr, delay) has no waitlist collaborator in this
	// driver to wake against yet, so it reports the fallible "not found"
	// case rather than silently succeeding.
	d.Register("env", "gr_wake", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		return nil, &hostcall.FallibleError{Code: 1}
	})
	d.Register("env", "gr_leave", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.exited = true
		return nil, nil
	})
	d.Register("env", "gr_exit", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		dc.exited = true
		return nil, nil
	})
}

func registerReservation(d *hostcall.Dispatcher, dc *dispatchState) {
	// gr_reserve_gas(amount, duration, err_rid_ptr)
	d.Register("env", "gr_reserve_gas", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		amount, duration := args[0], uint64(args[1])
		id, err := dc.ledger.Reserve(*uint256.NewInt(amount), duration)
		if err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		w := mem.RegisterWrite(uint32(args[2]), common.HashLength)
		w.Put(mem.Mem(), id.Bytes())
		return nil, nil
	})

	// gr_unreserve_gas(id_ptr, err_amount_ptr)
	d.Register("env", "gr_unreserve_gas", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		idRead := mem.RegisterRead(uint32(args[0]), common.HashLength)
		id := common.BytesToHash(idRead.Bytes(mem.Mem()))
		amount, _, err := dc.ledger.Unreserve(id)
		if err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		w := mem.RegisterWrite(uint32(args[1]), 32)
		b := amount.Bytes32()
		w.Put(mem.Mem(), b[:])
		return nil, nil
	})

	// gr_reservation_send(id_ptr, program_ptr, payload_ptr, value, err_mid_ptr)
	d.Register("env", "gr_reservation_send", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		idRead := mem.RegisterRead(uint32(args[0]), common.HashLength)
		id := common.BytesToHash(idRead.Bytes(mem.Mem()))
		if err := dc.ledger.MarkUsed(id); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		progRead := mem.RegisterRead(uint32(args[1]), common.HashLength)
		dest := common.BytesToHash(progRead.Bytes(mem.Mem()))
		value := args[3]
		dc.outbox = append(dc.outbox, OutboundMessage{Destination: dest, Value: *uint256.NewInt(value)})
		return nil, nil
	})

	// gr_reservation_reply(id_ptr, payload_ptr, value, err_ptr)
	d.Register("env", "gr_reservation_reply", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		idRead := mem.RegisterRead(uint32(args[0]), common.HashLength)
		id := common.BytesToHash(idRead.Bytes(mem.Mem()))
		if err := dc.ledger.MarkUsed(id); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		dc.replyValue = *uint256.NewInt(args[2])
		dc.replySent = true
		return nil, nil
	})

	// gr_reply_deposit(message_id_ptr, value, err_ptr): deposits value against
	// a future reply, backed by the same ledger slot bookkeeping as a
	// reservation since both are billed against the message's nonce.
	d.Register("env", "gr_reply_deposit", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		value := args[1]
		if _, err := dc.ledger.Reserve(*uint256.NewInt(value), 0); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		return nil, nil
	})

	// gr_system_reserve_gas(amount, err_ptr): billed straight against the
	// dispatch's own gas-tree node rather than the ledger, per §4.E's
	// system-reserve slot.
	d.Register("env", "gr_system_reserve_gas", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		amount := uint256.NewInt(args[0])
		if err := dc.tree.SystemReserve(dc.node, *amount); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		return nil, nil
	})
}

func registerCreation(d *hostcall.Dispatcher, dc *dispatchState) {
	// gr_create_program(code_id_ptr, payload_ptr, len, value, err_mid_ptr):
	// carves a Cut node off the dispatch's own node for the new program,
	// using childNodeID's deterministic child-id derivation so repeated
	// creates within one dispatch never collide.
	d.Register("env", "gr_create_program", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		value := args[3]
		child := childNodeID(dc)
		if err := dc.tree.Cut(dc.node, child, *uint256.NewInt(value)); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		return nil, nil
	})

	// gr_create_program_wgas(code_id_ptr, payload_ptr, len, gas_limit, value, err_mid_ptr)
	d.Register("env", "gr_create_program_wgas", func(mem *memory.AccessManager, args []uint64) ([]uint64, error) {
		value := args[4]
		child := childNodeID(dc)
		if err := dc.tree.Cut(dc.node, child, *uint256.NewInt(value)); err != nil {
			return nil, &hostcall.FallibleError{Code: 1}
		}
		return nil, nil
	})
}

// childNodeID derives a fresh, deterministic node id for a gr_create_program*
// call within this dispatch: sha256(messageID || nonce), the same scheme
// core/gastree.Ledger uses internally to derive reservation ids from a
// message id and an incrementing counter.
func childNodeID(dc *dispatchState) common.NodeID {
	nonce := dc.createNonce
	dc.createNonce++
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	h := sha256.New()
	h.Write(dc.messageID.Bytes())
	h.Write(nonceBytes[:])
	return common.BytesToHash(h.Sum(nil))
}
