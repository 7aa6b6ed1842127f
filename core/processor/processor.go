// Package processor implements the top-level single-dispatch driver
// described informally in SPEC_FULL's module layout: it wires the
// pre-charge pipeline (core/precharge, Component G) into the environment
// façade (core/env, Component I) and the host-call dispatcher
// (core/hostcall, Component H), and drains the result into an Outcome the
// collaborator applies. This is the concrete shape of §2's control-flow
// paragraph ("the collaborator hands a dispatch to G, which walks its
// stages...").
package processor

import (
	"github.com/holiman/uint256"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/core/codes"
	"github.com/gearbox/corevm/core/env"
	"github.com/gearbox/corevm/core/gas"
	"github.com/gearbox/corevm/core/gastree"
	"github.com/gearbox/corevm/core/hostcall"
	"github.com/gearbox/corevm/core/instrument"
	"github.com/gearbox/corevm/core/memory"
	"github.com/gearbox/corevm/core/precharge"
	"github.com/gearbox/corevm/engine"
	"github.com/gearbox/corevm/log"
	"github.com/gearbox/corevm/metrics"
	"github.com/gearbox/corevm/storage"
)

// Program is everything the driver needs to know about the target program
// ahead of a dispatch: its raw and instrumented code, declared exports, and
// current page allocation — what a real collaborator would load from the
// program entity before handing the dispatch to G.
type Program struct {
	ID               common.ProgramID
	OriginalCode     []byte
	InstrumentedCode []byte
	Exports          map[string]bool
	Sections         instrument.SectionSizes
	StaticPages      uint32
	AllocatedPages   uint32 // count of intervals in the allocation map
	LastPage         uint32 // highest allocated page index, for final mem size

	// StackEndPage is the instrumentation pass's __stack_end boundary
	// (core/instrument.StackEndExport), in wasm pages. Pages below it are
	// never lazily loaded from storage since the stack never persists
	// across invocations.
	StackEndPage uint32
}

// Dispatch names one incoming message: its kind selects the entry point and
// decides which precharge_for_code_length short-circuit applies.
type Dispatch struct {
	MessageID common.MessageID
	Kind      string // "init", "handle", "handle_reply", "handle_signal"

	// Payload is the incoming message's own payload, what gr_read (§4.H
	// message_io family) copies out of.
	Payload []byte
}

// Outcome is the driver's result for one dispatch, §4.I point 7's drain
// list: the outbox, reply and reservation state the registered host-call
// handlers (handlers.go) accumulated against the dispatch's gas-tree node
// and reservation ledger over the course of the call.
type Outcome struct {
	Requeue   bool // true iff the block allowance, not the message limit, blocked execution
	Stage     precharge.Stage
	StageHit  bool // true iff Requeue is false and a precharge stage produced a terminal error
	ReplyCode codes.ReplyCode
	GasBurned uint64
	GasLeft   uint64
	Invoked   bool

	WriteAccessedPages []uint32

	Outbox       []OutboundMessage
	ReplyPayload []byte
	ReplySent    bool
	Waiting      bool
	Exited       bool
}

// Driver bundles the collaborators one dispatch needs: a storage-backed
// engine store, the syscall catalogue/dispatcher factory, and the metrics
// the lazy-page engine and pipeline report through.
type Driver struct {
	store  *storage.Store
	engine *engine.Store
	rules  precharge.Rules
	log    log.Logger

	pageFaults metrics.Counter
	gasBurned  metrics.Counter
}

// NewDriver opens a driver over store using engine as the WASM engine
// collaborator and rules as the published pre-charge cost table.
func NewDriver(store *storage.Store, eng *engine.Store, rules precharge.Rules) *Driver {
	return &Driver{
		store:       store,
		engine:      eng,
		rules:       rules,
		log:        log.New("component", "processor"),
		pageFaults: metrics.NewCounter(),
		gasBurned:  metrics.NewCounter(),
	}
}

// PageFaults reports the running count of lazy-page faults serviced across
// every dispatch this driver has run.
func (d *Driver) PageFaults() int64 { return d.pageFaults.Count() }

// Run executes one dispatch against prog, following §2's control flow:
// precharge stages first, then (on success) instantiate, invoke, drain.
func (d *Driver) Run(disp Dispatch, prog *Program, gasLimit, allowance uint64) (Outcome, error) {
	counters := gas.NewPair(gasLimit, allowance)
	logger := d.log.New("msg", disp.MessageID.Hex(), "program", prog.ID.Hex(), "kind", disp.Kind)

	pcOutcome, err := precharge.Run(
		counters, d.rules, disp.Kind, prog.Exports,
		prog.AllocatedPages, uint32(len(prog.OriginalCode)), uint32(len(prog.OriginalCode)),
		prog.Sections, prog.StaticPages, prog.LastPage,
	)
	if err != nil {
		if err == precharge.ErrAllowanceExceeded {
			logger.Debug("allowance exceeded during precharge, re-queueing")
			return Outcome{Requeue: true}, nil
		}
		var execErr *precharge.ExecutionError
		if ok := asExecutionError(err, &execErr); ok {
			logger.Debug("precharge execution error", "stage", execErr.Stage.String())
			return Outcome{
				StageHit:  true,
				Stage:     execErr.Stage,
				ReplyCode: codes.Encode(codes.ErrorExecution{Reason: codes.BackendError}),
				GasBurned: counters.Limit.Burned(),
				GasLeft:   counters.Limit.Left(),
			}, nil
		}
		return Outcome{}, err
	}

	if pcOutcome.Skipped {
		logger.Debug("dispatch kind not exported, skipping execution")
		return Outcome{
			ReplyCode: codes.Encode(codes.Success{Reason: codes.SuccessAuto}),
			GasBurned: counters.Limit.Burned(),
			GasLeft:   counters.Limit.Left(),
		}, nil
	}

	cache := sharedFastcache()
	lp, err := memory.NewLazyPagesContext(prog.ID, pcOutcome.MemSize, stackEndPage(prog), d.store, cache)
	if err != nil {
		return Outcome{}, err
	}
	defer lp.Close()

	state := hostcall.NewState()
	cat := hostcall.For(d.engine)
	dispatcher := hostcall.NewDispatcher(cat, counters, state)

	dc, err := d.newDispatchState(disp, counters)
	if err != nil {
		return Outcome{}, err
	}
	registerHandlers(dispatcher, dc)

	facade := env.NewFacade(d.engine, dispatcher, state, counters)
	ext := driverExternalities{counters: counters, minPages: pcOutcome.MemSize, maxPages: pcOutcome.MemSize}
	result := facade.Run(prog.ID.Hex(), prog.InstrumentedCode, disp.Kind, cat, lp, ext)

	if err := lp.UploadDirtyPages(); err != nil {
		return Outcome{}, err
	}

	d.gasBurned.Inc(int64(counters.Limit.Burned()))
	d.pageFaults.Inc(int64(len(lp.AccessedPages())))
	logger.Info("dispatch complete", "gas_burned", counters.Limit.Burned(), "pages_touched", len(lp.AccessedPages()))

	if result.EngineErr != nil {
		logger.Warn("engine error", "err", result.EngineErr)
	}

	return Outcome{
		ReplyCode:          result.ReplyCode,
		GasBurned:          counters.Limit.Burned(),
		GasLeft:            result.GasLeft,
		Invoked:            result.Invoked,
		WriteAccessedPages: lp.WriteAccessedPages(),
		Outbox:             dc.outbox,
		ReplyPayload:       dc.replyPayload,
		ReplySent:          dc.replySent,
		Waiting:            dc.waiting,
		Exited:             dc.exited,
	}, nil
}

// newDispatchState opens this dispatch's gas-tree node and reservation
// ledger against d.store, creating the node as a fresh External root with
// the call's own gas limit as its opening balance if this is the node's
// first appearance (a real collaborator would instead load an existing
// node created when the message was enqueued). The node id is the message
// id itself: one gas-tree root per dispatch.
func (d *Driver) newDispatchState(disp Dispatch, counters *gas.Pair) (*dispatchState, error) {
	tree, err := gastree.NewTree(d.store, 1024)
	if err != nil {
		return nil, err
	}

	node := common.NodeID(disp.MessageID)
	if _, ok, err := tree.Get(node); err != nil {
		return nil, err
	} else if !ok {
		opening := *uint256.NewInt(counters.Limit.Limit())
		if err := tree.Create(node, common.ExternalID(disp.MessageID), opening, 1, false); err != nil {
			return nil, err
		}
	}

	ledger := gastree.NewLedger(disp.MessageID, 0, nil)

	return &dispatchState{
		messageID: disp.MessageID,
		node:      node,
		payload:   disp.Payload,
		tree:      tree,
		ledger:    ledger,
	}, nil
}

func asExecutionError(err error, out **precharge.ExecutionError) bool {
	e, ok := err.(*precharge.ExecutionError)
	if ok {
		*out = e
	}
	return ok
}

// stackEndPage reads the instrumentation pass's __stack_end boundary off
// prog, as computed by whoever instrumented it (cmd/gearrun, for the CLI
// driver) via instrument.StackEndExport.
func stackEndPage(prog *Program) memory.WasmPage {
	return memory.WasmPage(prog.StackEndPage)
}
