package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	"nftlend/core/state"
	"nftlend/native/accounts"
	"nftlend/native/bank"
	"nftlend/native/coordinator"
	"nftlend/native/escrow"
	"nftlend/native/liquidity"
	"nftlend/native/loans"
	"nftlend/native/nft"
	"nftlend/native/receipts"
	"nftlend/native/refinance"
	"nftlend/native/registry"
	"nftlend/native/signing"
	"nftlend/observability"
	"nftlend/storage"
)

var (
	ErrOwnerRequired     = errors.New("core: registry owner must be configured")
	ErrUnknownOfferType  = errors.New("core: no loan contract for offer type")
	ErrUnknownContract   = errors.New("core: address is not a loan contract")
	ErrOperationPanicked = errors.New("core: operation panicked")
)

// Config fixes the protocol parameters a node runs with.
type Config struct {
	ChainID         *big.Int
	Owner           ethcommon.Address
	Treasury        ethcommon.Address
	MaxLoanDuration uint64
	AdminFeeBps     uint64
	FlashFeeBps     uint64
}

// Node is the central controller, wiring every protocol component onto one
// journaled state and serialising all mutations.
type Node struct {
	mu          sync.RWMutex
	db          storage.Database
	state       *state.Manager
	buffer      *events.Buffer
	subscribers events.Fanout
	logger      *slog.Logger
	cfg         Config

	registry    *registry.Registry
	bank        *bank.Ledger
	nfts        *nft.Ledger
	escrow      *escrow.Engine
	coordinator *coordinator.Engine
	promissory  *receipts.Engine
	obligation  *receipts.Engine
	accounts    *accounts.Book
	pool        *liquidity.Engine
	refinancer  *refinance.Engine
	loans       map[signing.OfferType]*loans.Engine
	loansByAddr map[ethcommon.Address]*loans.Engine
}

// NewNode wires the protocol onto db. On first start it installs cfg.Owner as
// registry owner and registers every loan contract.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("core: chain id must be positive")
	}
	if cfg.Treasury == (ethcommon.Address{}) {
		cfg.Treasury = TreasuryAddress
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:          db,
		state:       state.NewManager(db),
		buffer:      &events.Buffer{},
		logger:      logger.With("component", "node"),
		cfg:         cfg,
		loans:       make(map[signing.OfferType]*loans.Engine),
		loansByAddr: make(map[ethcommon.Address]*loans.Engine),
	}
	if err := n.wire(); err != nil {
		return nil, err
	}
	if err := n.initRegistry(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) wire() error {
	st, buf := n.state, n.buffer

	n.registry = registry.New()
	n.registry.SetState(st)
	n.registry.SetEmitter(buf)

	n.bank = bank.NewLedger()
	n.bank.SetState(st)
	n.bank.SetEmitter(buf)

	n.nfts = nft.NewLedger()
	n.nfts.SetState(st)
	n.nfts.SetEmitter(buf)

	n.escrow = escrow.NewEngine(EscrowAddress)
	n.escrow.SetState(st)
	n.escrow.SetRegistry(n.registry)
	n.escrow.SetPauses(n.registry)
	n.escrow.SetEmitter(buf)
	n.escrow.RegisterAdapters(escrow.DefaultAdapters(n.nfts))

	n.coordinator = coordinator.NewEngine(CoordinatorAddress)
	n.promissory = receipts.NewEngine(receipts.PromissoryNote, CoordinatorAddress)
	n.obligation = receipts.NewEngine(receipts.ObligationReceipt, CoordinatorAddress)
	for _, r := range []*receipts.Engine{n.promissory, n.obligation} {
		r.SetState(st)
		r.SetEmitter(buf)
	}
	n.coordinator.SetState(st)
	n.coordinator.SetLoanTypes(n.registry)
	n.coordinator.SetReceipts(n.promissory, n.obligation)
	n.coordinator.SetEmitter(buf)

	n.accounts = accounts.NewBook()
	n.accounts.SetState(st)
	n.accounts.SetEmitter(buf)

	n.pool = liquidity.NewEngine(PoolAddress)
	n.pool.SetState(st)
	n.pool.SetBank(n.bank)
	n.pool.SetCurrencies(n.registry)
	n.pool.SetPauses(n.registry)
	n.pool.SetEmitter(buf)
	if err := n.pool.SetFlashFeeBps(n.cfg.FlashFeeBps); err != nil {
		return err
	}

	n.refinancer = refinance.NewEngine(RefinanceAddress)
	n.refinancer.SetState(st)
	n.refinancer.SetCoordinator(n.coordinator)
	n.refinancer.SetPool(n.pool)
	n.refinancer.SetEscrow(n.escrow)
	n.refinancer.SetBank(n.bank)
	n.refinancer.SetPauses(n.registry)
	n.refinancer.SetEmitter(buf)
	n.refinancer.SetNowFunc(func() int64 { return time.Now().Unix() })

	params := loans.Params{
		MaxLoanDuration: n.cfg.MaxLoanDuration,
		AdminFeeBps:     n.cfg.AdminFeeBps,
		Treasury:        n.cfg.Treasury,
	}
	for _, offerType := range signing.OfferTypes {
		engine, err := loans.NewEngine(LoanContractAddress(offerType), offerType, n.cfg.ChainID)
		if err != nil {
			return err
		}
		engine.SetState(st)
		engine.SetRegistry(n.registry)
		engine.SetEscrow(n.escrow)
		engine.SetCoordinator(n.coordinator)
		engine.SetBank(n.bank)
		engine.SetPauses(n.registry)
		engine.SetAccounts(n.accounts)
		engine.SetParams(params)
		engine.SetRefinancer(RefinanceAddress)
		engine.SetEmitter(buf)
		n.loans[offerType] = engine
		n.loansByAddr[engine.Address()] = engine
		n.refinancer.RegisterLoanContract(engine)
	}
	return nil
}

func (n *Node) initRegistry() error {
	owner, err := n.registry.Owner()
	if err != nil {
		return err
	}
	if owner != (ethcommon.Address{}) {
		return nil
	}
	if n.cfg.Owner == (ethcommon.Address{}) {
		return ErrOwnerRequired
	}
	return n.Execute("init", func() error {
		if err := n.registry.InitOwner(n.cfg.Owner); err != nil {
			return err
		}
		for _, offerType := range signing.OfferTypes {
			if err := n.registry.RegisterLoanType(n.cfg.Owner, string(offerType), LoanContractAddress(offerType)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Subscribe adds a receiver for committed events. Subscribers run under the
// node lock and must not call back into the node.
func (n *Node) Subscribe(sub events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, sub)
}

// SetNowFunc overrides the clock of every time-aware component.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escrow.SetNowFunc(now)
	n.refinancer.SetNowFunc(now)
	for _, engine := range n.loans {
		engine.SetNowFunc(now)
	}
}

// Execute runs fn as one atomic operation. Its writes are committed in a
// single batch and its events delivered only when fn succeeds; otherwise
// every write and event is dropped.
func (n *Node) Execute(op string, fn func() error) (err error) {
	start := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		observability.ProtocolMetrics().ObserveOperation(op, err, time.Since(start))
	}()

	mark := n.state.Snapshot()
	if err = n.run(fn); err != nil {
		n.state.RevertToSnapshot(mark)
		n.state.Discard()
		n.buffer.Reset()
		n.logger.Debug("operation reverted", "op", op, "error", err)
		return err
	}
	keys := n.state.Pending()
	if err = n.state.Commit(); err != nil {
		n.state.Discard()
		n.buffer.Reset()
		n.logger.Error("commit failed", "op", op, "error", err)
		return err
	}
	observability.ProtocolMetrics().RecordCommit(keys)
	for _, evt := range n.buffer.Drain() {
		n.subscribers.Emit(evt)
	}
	return nil
}

func (n *Node) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return fn()
}

// View runs fn against committed state. fn must not mutate.
func (n *Node) View(fn func() error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fn()
}

// Close releases the backing database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Discard()
	return n.db.Close()
}

func (n *Node) Config() Config { return n.cfg }

func (n *Node) ChainID() *big.Int { return new(big.Int).Set(n.cfg.ChainID) }

func (n *Node) Registry() *registry.Registry { return n.registry }

func (n *Node) Bank() *bank.Ledger { return n.bank }

func (n *Node) NFTs() *nft.Ledger { return n.nfts }

func (n *Node) Escrow() *escrow.Engine { return n.escrow }

func (n *Node) Coordinator() *coordinator.Engine { return n.coordinator }

func (n *Node) PromissoryNotes() *receipts.Engine { return n.promissory }

func (n *Node) ObligationReceipts() *receipts.Engine { return n.obligation }

func (n *Node) Accounts() *accounts.Book { return n.accounts }

func (n *Node) Pool() *liquidity.Engine { return n.pool }

func (n *Node) Refinancer() *refinance.Engine { return n.refinancer }

// LoanContract returns the origination contract for offerType.
func (n *Node) LoanContract(offerType signing.OfferType) (*loans.Engine, error) {
	engine, ok := n.loans[offerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOfferType, offerType)
	}
	return engine, nil
}

// LoanContractAt returns the origination contract deployed at addr.
func (n *Node) LoanContractAt(addr ethcommon.Address) (*loans.Engine, error) {
	engine, ok := n.loansByAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, addr.Hex())
	}
	return engine, nil
}

// LoanContractFor resolves the contract that created loanID.
func (n *Node) LoanContractFor(loanID uint64) (*loans.Engine, error) {
	data, err := n.coordinator.GetLoanData(loanID)
	if err != nil {
		return nil, err
	}
	return n.LoanContractAt(data.LoanContract)
}
