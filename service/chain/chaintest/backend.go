// Package chaintest provides an in-memory chain backend that emulates
// the crowdfunding contract, so gateway and workflow tests run without a
// node. It applies the same lifecycle rules the real contract enforces:
// sequential ids, deadline math, goal tracking, creator-only withdrawal,
// refunds only after a failed campaign.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundlift/fundlift/service/chain"
)

const contractABIJSON = `[
  {"type":"function","name":"createProject","stateMutability":"nonpayable","inputs":[{"name":"_title","type":"string"},{"name":"_description","type":"string"},{"name":"_goalAmount","type":"uint256"},{"name":"_durationInDays","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"contribute","stateMutability":"payable","inputs":[{"name":"_projectId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdrawFunds","stateMutability":"nonpayable","inputs":[{"name":"_projectId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getRefund","stateMutability":"nonpayable","inputs":[{"name":"_projectId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getAllProjects","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"id","type":"uint256"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"creator","type":"address"},{"name":"goalAmount","type":"uint256"},{"name":"raisedAmount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"goalReached","type":"bool"}]}]},
  {"type":"function","name":"getUserContribution","stateMutability":"view","inputs":[{"name":"_projectId","type":"uint256"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTimeRemaining","stateMutability":"view","inputs":[{"name":"_projectId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"ProjectCreated","anonymous":false,"inputs":[{"name":"projectId","type":"uint256","indexed":true},{"name":"title","type":"string","indexed":false},{"name":"creator","type":"address","indexed":true},{"name":"goalAmount","type":"uint256","indexed":false},{"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"ContributionMade","anonymous":false,"inputs":[{"name":"projectId","type":"uint256","indexed":true},{"name":"contributor","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

// ContractAddress is where the emulated contract lives.
var ContractAddress = common.HexToAddress("0xd9145CCE52D386f254917e481eB44e9943F39138")

var errRevert = errors.New("execution reverted")

// Backend emulates a node plus the deployed crowdfunding contract.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	parsed   abi.ABI
	projects []chain.Project
	// contributions[projectID][account] = cumulative wei
	contributions map[uint64]map[common.Address]*big.Int
	nonces        map[common.Address]uint64
	receipts      map[common.Hash]*types.Receipt
	logs          []types.Log
	blockNum      uint64
	now           time.Time

	// readErr, when set, fails every CallContract. Used to exercise
	// retain-on-failure behavior.
	readErr error
	// sendErr, when set, fails the next transaction at gas estimation,
	// the point where a node would report a revert.
	sendErr error
}

// NewBackend creates an emulated chain with the given chain id.
func NewBackend(chainID uint64) *Backend {
	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chaintest: bad ABI: %v", err))
	}
	return &Backend{
		chainID:       new(big.Int).SetUint64(chainID),
		parsed:        parsed,
		contributions: make(map[uint64]map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		blockNum:      1,
		now:           time.Now(),
	}
}

// WarpBy advances the emulated clock, e.g. past a project deadline.
func (b *Backend) WarpBy(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = b.now.Add(d)
}

// Now returns the emulated clock.
func (b *Backend) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// FailReads makes every contract read fail with err until cleared with nil.
func (b *Backend) FailReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr = err
}

// FailNextSend makes the next transaction fail at submission with err.
func (b *Backend) FailNextSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// ChainID implements the ethclient surface the wallet checks on connect.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	if contract == ContractAddress {
		return []byte{0x01}, nil
	}
	return nil, nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(b.blockNum),
		BaseFee: big.NewInt(1_000_000_000),
	}, nil
}

// EstimateGas dry-runs the call so a would-be revert surfaces at
// submission time, the way a real node reports it.
func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		err := b.sendErr
		b.sendErr = nil
		return 0, err
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	if _, err := b.execute(call.From, value, call.Data, false); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("chaintest: cannot recover sender: %w", err)
	}

	logs, err := b.execute(from, tx.Value(), tx.Data(), true)
	if err != nil {
		return err
	}

	b.nonces[from]++
	b.blockNum++
	for i := range logs {
		logs[i].BlockNumber = b.blockNum
		logs[i].TxHash = tx.Hash()
		logs[i].Index = uint(len(b.logs))
		b.logs = append(b.logs, logs[i])
	}

	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.blockNum),
		Logs:        toLogPtrs(logs),
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readErr != nil {
		return nil, b.readErr
	}

	method, err := b.parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "getAllProjects":
		return method.Outputs.Pack(b.snapshotLocked())

	case "getUserContribution":
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		id := args[0].(*big.Int).Uint64()
		user := args[1].(common.Address)
		total := new(big.Int)
		if byUser, ok := b.contributions[id]; ok {
			if c, ok := byUser[user]; ok {
				total.Set(c)
			}
		}
		return method.Outputs.Pack(total)

	case "getTimeRemaining":
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		p, err := b.projectLocked(args[0].(*big.Int).Uint64())
		if err != nil {
			return nil, err
		}
		remaining := p.Deadline.Int64() - b.now.Unix()
		if remaining < 0 {
			remaining = 0
		}
		return method.Outputs.Pack(big.NewInt(remaining))
	}

	return nil, fmt.Errorf("chaintest: unexpected view call %s", method.Name)
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []types.Log
	for _, l := range b.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("chaintest: log subscriptions not supported, poll FilterLogs")
}

// execute applies (or dry-runs) a state-changing contract call.
func (b *Backend) execute(from common.Address, value *big.Int, data []byte, apply bool) ([]types.Log, error) {
	method, err := b.parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "createProject":
		title := args[0].(string)
		description := args[1].(string)
		goal := args[2].(*big.Int)
		durationDays := args[3].(*big.Int)
		if title == "" || goal.Sign() <= 0 || durationDays.Sign() <= 0 {
			return nil, fmt.Errorf("%w: invalid project parameters", errRevert)
		}
		if !apply {
			return nil, nil
		}
		id := uint64(len(b.projects) + 1)
		deadline := big.NewInt(b.now.Unix() + durationDays.Int64()*24*3600)
		b.projects = append(b.projects, chain.Project{
			Id:           new(big.Int).SetUint64(id),
			Title:        title,
			Description:  description,
			Creator:      from,
			GoalAmount:   new(big.Int).Set(goal),
			RaisedAmount: new(big.Int),
			Deadline:     deadline,
			IsActive:     true,
			GoalReached:  false,
		})
		b.contributions[id] = make(map[common.Address]*big.Int)
		log, err := b.emitProjectCreated(id, title, from, goal, deadline)
		if err != nil {
			return nil, err
		}
		return []types.Log{log}, nil

	case "contribute":
		id := args[0].(*big.Int).Uint64()
		p, err := b.projectLocked(id)
		if err != nil {
			return nil, err
		}
		if !p.IsActive || b.now.Unix() >= p.Deadline.Int64() {
			return nil, fmt.Errorf("%w: project not accepting contributions", errRevert)
		}
		if value.Sign() <= 0 {
			return nil, fmt.Errorf("%w: contribution must be positive", errRevert)
		}
		if !apply {
			return nil, nil
		}
		p.RaisedAmount.Add(p.RaisedAmount, value)
		if p.RaisedAmount.Cmp(p.GoalAmount) >= 0 {
			p.GoalReached = true
		}
		byUser := b.contributions[id]
		if byUser[from] == nil {
			byUser[from] = new(big.Int)
		}
		byUser[from].Add(byUser[from], value)
		log, err := b.emitContributionMade(id, from, value)
		if err != nil {
			return nil, err
		}
		return []types.Log{log}, nil

	case "withdrawFunds":
		id := args[0].(*big.Int).Uint64()
		p, err := b.projectLocked(id)
		if err != nil {
			return nil, err
		}
		if from != p.Creator {
			return nil, fmt.Errorf("%w: only the creator can withdraw", errRevert)
		}
		if !p.GoalReached || p.RaisedAmount.Sign() <= 0 || !p.IsActive {
			return nil, fmt.Errorf("%w: funds not withdrawable", errRevert)
		}
		if !apply {
			return nil, nil
		}
		p.IsActive = false
		return nil, nil

	case "getRefund":
		id := args[0].(*big.Int).Uint64()
		p, err := b.projectLocked(id)
		if err != nil {
			return nil, err
		}
		if b.now.Unix() < p.Deadline.Int64() || p.GoalReached {
			return nil, fmt.Errorf("%w: campaign did not fail", errRevert)
		}
		contributed := b.contributions[id][from]
		if contributed == nil || contributed.Sign() <= 0 {
			return nil, fmt.Errorf("%w: nothing to refund", errRevert)
		}
		if !apply {
			return nil, nil
		}
		p.RaisedAmount.Sub(p.RaisedAmount, contributed)
		b.contributions[id][from] = new(big.Int)
		return nil, nil
	}

	return nil, fmt.Errorf("chaintest: unexpected transaction method %s", method.Name)
}

func (b *Backend) projectLocked(id uint64) (*chain.Project, error) {
	if id == 0 || id > uint64(len(b.projects)) {
		return nil, fmt.Errorf("%w: no such project %d", errRevert, id)
	}
	return &b.projects[id-1], nil
}

// snapshotLocked deep-copies the project set so packed responses never
// alias live state.
func (b *Backend) snapshotLocked() []chain.Project {
	out := make([]chain.Project, len(b.projects))
	for i, p := range b.projects {
		out[i] = chain.Project{
			Id:           new(big.Int).Set(p.Id),
			Title:        p.Title,
			Description:  p.Description,
			Creator:      p.Creator,
			GoalAmount:   new(big.Int).Set(p.GoalAmount),
			RaisedAmount: new(big.Int).Set(p.RaisedAmount),
			Deadline:     new(big.Int).Set(p.Deadline),
			IsActive:     p.IsActive,
			GoalReached:  p.GoalReached,
		}
	}
	return out
}

func (b *Backend) emitProjectCreated(id uint64, title string, creator common.Address, goal, deadline *big.Int) (types.Log, error) {
	ev := b.parsed.Events["ProjectCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(title, goal, deadline)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: ContractAddress,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			addressTopic(creator),
		},
		Data: data,
	}, nil
}

func (b *Backend) emitContributionMade(id uint64, contributor common.Address, amount *big.Int) (types.Log, error) {
	ev := b.parsed.Events["ContributionMade"]
	data, err := ev.Inputs.NonIndexed().Pack(amount)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: ContractAddress,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			addressTopic(contributor),
		},
		Data: data,
	}, nil
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func toLogPtrs(logs []types.Log) []*types.Log {
	out := make([]*types.Log, len(logs))
	for i := range logs {
		out[i] = &logs[i]
	}
	return out
}

func containsAddress(haystack []common.Address, needle common.Address) bool {
	for _, a := range haystack {
		if a == needle {
			return true
		}
	}
	return false
}

func containsHash(haystack []common.Hash, needle common.Hash) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
