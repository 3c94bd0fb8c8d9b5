package executor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/crypto"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/platform/pump"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
	"github.com/alanyoungcy/pumpbot/internal/pricing"
)

const testMint = "9QUYvUGiqCALxrMCyJrVYXtJSpt4BYzPRv5ZRjsdqzkh"

var (
	computeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	ataProgram           = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	testReserves         = domain.Reserves{Sol: 30, Tokens: 1_000_000_000}
)

// fakeChain is a scripted ChainClient.
type fakeChain struct {
	mu sync.Mutex

	// existsAfter is the number of GetAccountInfo calls that report the
	// account missing before it appears. Negative means never.
	existsAfter  int
	accountCalls int

	// curves holds bonding curve account data served by address.
	curves map[solana.PublicKey][]byte

	sendErrs []error
	sent     []*solana.Transaction

	statuses    []*rpc.SignatureStatusesResult
	statusCalls int

	balance    string
	balanceErr error
}

func (f *fakeChain) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.curves[account]; ok {
		return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
	}
	f.accountCalls++
	if f.existsAfter >= 0 && f.accountCalls > f.existsAfter {
		return &rpc.GetAccountInfoResult{Value: &rpc.Account{}}, nil
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}}}, nil
}

func (f *fakeChain) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	f.sent = append(f.sent, tx)
	if n < len(f.sendErrs) && f.sendErrs[n] != nil {
		return solana.Signature{}, f.sendErrs[n]
	}
	return tx.Signatures[0], nil
}

func (f *fakeChain) GetSignatureStatuses(ctx context.Context, search bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st *rpc.SignatureStatusesResult
	if f.statusCalls < len(f.statuses) {
		st = f.statuses[f.statusCalls]
	} else if len(f.statuses) > 0 {
		st = f.statuses[len(f.statuses)-1]
	}
	f.statusCalls++
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{st}}, nil
}

func (f *fakeChain) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: f.balance}}, nil
}

func (f *fakeChain) transactions() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.sent...)
}

var confirmed = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		BuyAmountSOL:             0.01,
		Slippage:                 0.15,
		Commitment:               rpc.CommitmentConfirmed,
		AccountSetupAttempts:     5,
		AccountSetupInitialDelay: time.Millisecond,
		ConfirmAttempts:          3,
		ConfirmInterval:          time.Millisecond,
		ComputeUnitLimit:         100_000,
		ComputeUnitPrice:         1_000_000,
	}
}

func newRPCEngine(t *testing.T, chain *fakeChain) (*RPCEngine, *crypto.Signer) {
	t.Helper()
	signer := crypto.NewSigner(solana.NewWallet().PrivateKey)
	return NewRPCEngine(chain, signer, testOptions(), testLogger()), signer
}

func buyDecision() domain.Decision {
	return domain.Decision{ID: "d1", Action: domain.ActionBuy, Mint: testMint, Reserves: testReserves}
}

func sellDecision(fraction float64) domain.Decision {
	return domain.Decision{ID: "d2", Action: domain.ActionSell, Mint: testMint, Fraction: fraction, Reserves: testReserves}
}

func programOf(t *testing.T, tx *solana.Transaction, i int) solana.PublicKey {
	t.Helper()
	require.Greater(t, len(tx.Message.Instructions), i)
	return tx.Message.AccountKeys[tx.Message.Instructions[i].ProgramIDIndex]
}

func lastInstruction(tx *solana.Transaction) solana.CompiledInstruction {
	return tx.Message.Instructions[len(tx.Message.Instructions)-1]
}

func TestRPCBuyBuildsBudgetAndBuyInstructions(t *testing.T) {
	chain := &fakeChain{statuses: []*rpc.SignatureStatusesResult{confirmed}}
	e, _ := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	require.True(t, o.Confirmed(), o.Detail)
	assert.Equal(t, BackendRPC, o.Backend)
	assert.NotEmpty(t, o.Signature)

	lamports := pricing.SOLToLamports(0.01)
	wantTokens := pricing.SolForTokens(lamports, pricing.FromDisplay(testReserves)).Uint64()
	assert.Equal(t, wantTokens, o.TokenAmount)
	assert.Equal(t, uint64(10_000_000), o.SolAmount)

	txs := chain.transactions()
	require.Len(t, txs, 1)
	tx := txs[0]
	require.Len(t, tx.Message.Instructions, 3)
	assert.Equal(t, computeBudgetProgram, programOf(t, tx, 0))
	assert.Equal(t, computeBudgetProgram, programOf(t, tx, 1))
	assert.Equal(t, pump.ProgramID, programOf(t, tx, 2))

	data := lastInstruction(tx).Data
	require.Len(t, data, 24)
	assert.Equal(t, pump.BuyDiscriminator, binary.LittleEndian.Uint64(data[0:8]))
	assert.Equal(t, wantTokens, binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(11_500_000), binary.LittleEndian.Uint64(data[16:24]))
	assert.NoError(t, tx.VerifySignatures())
}

func TestRPCBuyUndefinedQuoteSkipsAccountSetup(t *testing.T) {
	chain := &fakeChain{}
	e, _ := newRPCEngine(t, chain)

	d := buyDecision()
	d.Reserves = domain.Reserves{}
	o := e.Buy(context.Background(), d)
	assert.Equal(t, domain.OutcomeFailed, o.Status)
	assert.Equal(t, domain.ReasonQuoteUndefined, o.Reason)
	assert.Zero(t, chain.accountCalls)
	assert.Empty(t, chain.transactions())
}

func TestRPCBuyCreatesTokenAccountUntilVisible(t *testing.T) {
	chain := &fakeChain{existsAfter: 3, statuses: []*rpc.SignatureStatusesResult{confirmed}}
	e, signer := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	require.True(t, o.Confirmed(), o.Detail)

	// A create goes out on each of the three attempts that still found the
	// account missing, then the buy.
	txs := chain.transactions()
	require.Len(t, txs, 4)
	for _, tx := range txs[:3] {
		require.Len(t, tx.Message.Instructions, 1)
		assert.Equal(t, ataProgram, programOf(t, tx, 0))
		assert.Equal(t, []byte{createIdempotentTag}, []byte(tx.Message.Instructions[0].Data))
	}
	assert.Equal(t, pump.ProgramID, programOf(t, txs[3], 2))
	assert.Equal(t, 4, chain.accountCalls)

	acc, err := pump.DeriveAccounts(solana.MustPublicKeyFromBase58(testMint), signer.PublicKey())
	require.NoError(t, err)
	ix := createTokenAccountIdempotent(acc)
	metas := ix.Accounts()
	require.Len(t, metas, 6)
	assert.Equal(t, acc.User, metas[0].PublicKey)
	assert.True(t, metas[0].IsSigner)
	assert.Equal(t, acc.UserTokenAccount, metas[1].PublicKey)
	assert.Equal(t, acc.Mint, metas[3].PublicKey)
}

func TestRPCBuyResendsCreateWhenFirstIsDropped(t *testing.T) {
	// The first create is accepted by the node but never lands.
	chain := &fakeChain{existsAfter: 2, statuses: []*rpc.SignatureStatusesResult{confirmed}}
	e, _ := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	require.True(t, o.Confirmed(), o.Detail)

	txs := chain.transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, ataProgram, programOf(t, txs[0], 0))
	assert.Equal(t, ataProgram, programOf(t, txs[1], 0))
}

func TestRPCBuyResendsCreateAfterSendError(t *testing.T) {
	chain := &fakeChain{
		existsAfter: 2,
		sendErrs:    []error{errors.New("node busy")},
		statuses:    []*rpc.SignatureStatusesResult{confirmed},
	}
	e, _ := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	require.True(t, o.Confirmed(), o.Detail)

	txs := chain.transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, ataProgram, programOf(t, txs[0], 0))
	assert.Equal(t, ataProgram, programOf(t, txs[1], 0))
}

func TestRPCBuyAccountSetupExhausted(t *testing.T) {
	chain := &fakeChain{existsAfter: -1}
	e, _ := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	assert.Equal(t, domain.OutcomeFailed, o.Status)
	assert.Equal(t, domain.ReasonAccountSetup, o.Reason)
	assert.Equal(t, 5, chain.accountCalls)
	assert.Len(t, chain.transactions(), 5)
}

func TestRPCBuyConfirmationFailures(t *testing.T) {
	tests := []struct {
		name     string
		statuses []*rpc.SignatureStatusesResult
		reason   domain.Reason
		polls    int
	}{
		{"rejected", []*rpc.SignatureStatusesResult{{Err: map[string]any{"InstructionError": []any{2, "Custom"}}}}, domain.ReasonRejected, 1},
		{"never visible", nil, domain.ReasonUnconfirmed, 3},
		{"stuck processed", []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusProcessed}}, domain.ReasonUnconfirmed, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakeChain{statuses: tt.statuses}
			e, _ := newRPCEngine(t, chain)

			o := e.Buy(context.Background(), buyDecision())
			assert.Equal(t, domain.OutcomeFailed, o.Status)
			assert.Equal(t, tt.reason, o.Reason)
			assert.NotEmpty(t, o.Signature)
			assert.Equal(t, tt.polls, chain.statusCalls)
		})
	}
}

func TestRPCBuySubmitError(t *testing.T) {
	chain := &fakeChain{sendErrs: []error{errors.New("blockhash not found")}}
	e, _ := newRPCEngine(t, chain)

	o := e.Buy(context.Background(), buyDecision())
	assert.Equal(t, domain.ReasonSubmitError, o.Reason)
	assert.Contains(t, o.Detail, "blockhash not found")
	assert.Zero(t, chain.statusCalls)
}

func TestRPCSellPartialKeepsAccountOpen(t *testing.T) {
	chain := &fakeChain{balance: "1000001", statuses: []*rpc.SignatureStatusesResult{confirmed}}
	e, _ := newRPCEngine(t, chain)

	o := e.Sell(context.Background(), sellDecision(0.5))
	require.True(t, o.Confirmed(), o.Detail)
	assert.Equal(t, uint64(500000), o.TokenAmount)

	tx := chain.transactions()[0]
	require.Len(t, tx.Message.Instructions, 3)
	assert.Equal(t, pump.ProgramID, programOf(t, tx, 2))
	data := lastInstruction(tx).Data
	assert.Equal(t, pump.SellDiscriminator, binary.LittleEndian.Uint64(data[0:8]))
	assert.Equal(t, uint64(500000), binary.LittleEndian.Uint64(data[8:16]))
}

func TestRPCSellFullClosesAccount(t *testing.T) {
	chain := &fakeChain{balance: "1000001", statuses: []*rpc.SignatureStatusesResult{confirmed}}
	e, _ := newRPCEngine(t, chain)

	o := e.Sell(context.Background(), sellDecision(1))
	require.True(t, o.Confirmed(), o.Detail)
	assert.Equal(t, uint64(1000001), o.TokenAmount)

	tx := chain.transactions()[0]
	require.Len(t, tx.Message.Instructions, 4)
	assert.Equal(t, pump.ProgramID, programOf(t, tx, 2))
	assert.Equal(t, solana.TokenProgramID, programOf(t, tx, 3))
}

func TestRPCSellNoBalance(t *testing.T) {
	for name, chain := range map[string]*fakeChain{
		"zero":    {balance: "0"},
		"missing": {balanceErr: errors.New("could not find account")},
		"dust":    {balance: "1"},
	} {
		t.Run(name, func(t *testing.T) {
			e, _ := newRPCEngine(t, chain)
			o := e.Sell(context.Background(), sellDecision(0.25))
			assert.Equal(t, domain.OutcomeSkipped, o.Status)
			assert.Equal(t, domain.ReasonNoBalance, o.Reason)
			assert.Empty(t, chain.transactions())
		})
	}
}

func TestRPCSellUndefinedQuote(t *testing.T) {
	chain := &fakeChain{balance: "1000"}
	e, _ := newRPCEngine(t, chain)

	d := sellDecision(1)
	d.Reserves = domain.Reserves{Sol: 10}
	o := e.Sell(context.Background(), d)
	assert.Equal(t, domain.ReasonQuoteUndefined, o.Reason)
}

func bondingCurveData(vTokens, vSol uint64) []byte {
	data := make([]byte, 49)
	binary.LittleEndian.PutUint64(data[8:16], vTokens)
	binary.LittleEndian.PutUint64(data[16:24], vSol)
	return data
}

func TestRPCSellReadsCurveWhenReservesUnknown(t *testing.T) {
	signer := crypto.NewSigner(solana.NewWallet().PrivateKey)
	acc, err := pump.DeriveAccounts(solana.MustPublicKeyFromBase58(testMint), signer.PublicKey())
	require.NoError(t, err)

	// The curve holds the same reserves as testReserves, in base units.
	chain := &fakeChain{
		balance:  "1000000",
		statuses: []*rpc.SignatureStatusesResult{confirmed},
		curves:   map[solana.PublicKey][]byte{acc.BondingCurve: bondingCurveData(1_000_000_000_000_000, 30_000_000_000)},
	}
	e := NewRPCEngine(chain, signer, testOptions(), testLogger())

	d := sellDecision(1)
	d.Reserves = domain.Reserves{}
	o := e.Sell(context.Background(), d)
	require.True(t, o.Confirmed(), o.Detail)

	want := pricing.TokensForSol(decimal.NewFromInt(1_000_000), pricing.FromDisplay(testReserves))
	require.True(t, want.Defined)
	assert.Equal(t, want.Uint64(), o.SolAmount)

	sell := chain.transactions()[0].Message.Instructions[2].Data
	minOut := pricing.ToUint64(pricing.ApplySlippage(want.Amount, pricing.Sell, testOptions().Slippage))
	assert.Equal(t, minOut, binary.LittleEndian.Uint64(sell[16:24]))
}

func TestRPCSellUnknownReservesWithoutCurve(t *testing.T) {
	chain := &fakeChain{balance: "1000000"}
	e, _ := newRPCEngine(t, chain)

	d := sellDecision(1)
	d.Reserves = domain.Reserves{}
	o := e.Sell(context.Background(), d)
	assert.Equal(t, domain.ReasonQuoteUndefined, o.Reason)
	assert.Empty(t, chain.transactions())
}

func TestInvalidDecisions(t *testing.T) {
	chain := &fakeChain{}
	e, _ := newRPCEngine(t, chain)
	paper := NewPaperEngine(testOptions(), testLogger())
	broker := NewBrokerEngine(&fakeTradeAPI{}, nil, solana.PublicKey{}, testOptions(), testLogger())

	for _, eng := range []Engine{e, paper, broker} {
		t.Run(eng.Name(), func(t *testing.T) {
			o := eng.Buy(context.Background(), sellDecision(1))
			assert.Equal(t, domain.ReasonInvalidDecision, o.Reason)
			o = eng.Sell(context.Background(), sellDecision(1.5))
			assert.Equal(t, domain.ReasonInvalidDecision, o.Reason)
			o = eng.Sell(context.Background(), sellDecision(0))
			assert.Equal(t, domain.ReasonInvalidDecision, o.Reason)
		})
	}

	d := buyDecision()
	d.Mint = "not-a-key"
	assert.Equal(t, domain.ReasonInvalidDecision, e.Buy(context.Background(), d).Reason)
}

type fakeTradeAPI struct {
	mu   sync.Mutex
	reqs []pumpportal.TradeRequest
	sig  string
	err  error
}

func (f *fakeTradeAPI) Trade(ctx context.Context, req pumpportal.TradeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.sig, f.err
}

func TestBrokerBuyAndSellRequests(t *testing.T) {
	api := &fakeTradeAPI{sig: "broker-sig"}
	e := NewBrokerEngine(api, nil, solana.PublicKey{}, testOptions(), testLogger())

	o := e.Buy(context.Background(), buyDecision())
	require.True(t, o.Confirmed())
	assert.Equal(t, "broker-sig", o.Signature)
	assert.Equal(t, BackendBroker, o.Backend)

	o = e.Sell(context.Background(), sellDecision(0.25))
	require.True(t, o.Confirmed())

	assert.Equal(t, []pumpportal.TradeRequest{
		{Action: domain.ActionBuy, Mint: testMint, Amount: 0.01, SlippagePercent: 15},
		{Action: domain.ActionSell, Mint: testMint, Amount: 25, SlippagePercent: 15},
	}, api.reqs)
}

func TestBrokerKeepsFractionalSlippage(t *testing.T) {
	for _, tt := range []struct {
		slippage float64
		want     float64
	}{
		{0.005, 0.5},
		{0.004, 0.4},
		{0.15, 15},
		{0.333, 33.3},
	} {
		api := &fakeTradeAPI{sig: "s"}
		opts := testOptions()
		opts.Slippage = tt.slippage
		e := NewBrokerEngine(api, nil, solana.PublicKey{}, opts, testLogger())

		require.True(t, e.Buy(context.Background(), buyDecision()).Confirmed())
		require.Len(t, api.reqs, 1)
		assert.Equal(t, tt.want, api.reqs[0].SlippagePercent)
	}
}

func TestBrokerErrorMapsToFailure(t *testing.T) {
	api := &fakeTradeAPI{err: errors.New("pumpportal: broker rejected trade")}
	e := NewBrokerEngine(api, nil, solana.PublicKey{}, testOptions(), testLogger())

	o := e.Buy(context.Background(), buyDecision())
	assert.Equal(t, domain.OutcomeFailed, o.Status)
	assert.Equal(t, domain.ReasonBrokerError, o.Reason)
}

func TestBrokerConfirmsOnChain(t *testing.T) {
	sig := solana.Signature{9, 9, 9}
	api := &fakeTradeAPI{sig: sig.String()}
	chain := &fakeChain{balance: "100", statuses: []*rpc.SignatureStatusesResult{nil, confirmed}}
	wallet := solana.NewWallet().PublicKey()
	e := NewBrokerEngine(api, chain, wallet, testOptions(), testLogger())

	o := e.Sell(context.Background(), sellDecision(1))
	require.True(t, o.Confirmed(), o.Detail)
	assert.Equal(t, 2, chain.statusCalls)

	chain.balance = "0"
	o = e.Sell(context.Background(), sellDecision(1))
	assert.Equal(t, domain.OutcomeSkipped, o.Status)
	assert.Equal(t, domain.ReasonNoBalance, o.Reason)
	assert.Len(t, api.reqs, 1)
}

func TestBrokerUnparseableSignature(t *testing.T) {
	api := &fakeTradeAPI{sig: "not base58 !"}
	e := NewBrokerEngine(api, &fakeChain{}, solana.PublicKey{}, testOptions(), testLogger())

	o := e.Buy(context.Background(), buyDecision())
	assert.Equal(t, domain.ReasonBrokerError, o.Reason)
	assert.Equal(t, "not base58 !", o.Signature)
}

func TestPaperEngineTracksBalances(t *testing.T) {
	e := NewPaperEngine(testOptions(), testLogger())
	ctx := context.Background()

	o := e.Buy(ctx, buyDecision())
	require.True(t, o.Confirmed())
	bought := o.TokenAmount
	require.NotZero(t, bought)
	assert.Equal(t, bought, e.Balance(testMint))
	assert.Contains(t, o.Signature, "paper-")

	o = e.Sell(ctx, sellDecision(0.5))
	require.True(t, o.Confirmed())
	assert.Equal(t, bought/2, o.TokenAmount)
	assert.NotZero(t, o.SolAmount)

	o = e.Sell(ctx, sellDecision(1))
	require.True(t, o.Confirmed())
	assert.Zero(t, e.Balance(testMint))

	o = e.Sell(ctx, sellDecision(1))
	assert.Equal(t, domain.OutcomeSkipped, o.Status)
	assert.Equal(t, domain.ReasonNoBalance, o.Reason)

	d := buyDecision()
	d.Reserves = domain.Reserves{}
	assert.Equal(t, domain.ReasonQuoteUndefined, e.Buy(ctx, d).Reason)
}

func TestPaperSellWithoutReservesStillFills(t *testing.T) {
	e := NewPaperEngine(testOptions(), testLogger())
	e.Seed(testMint, 1000)

	d := sellDecision(1)
	d.Reserves = domain.Reserves{}
	o := e.Sell(context.Background(), d)
	require.True(t, o.Confirmed())
	assert.Equal(t, uint64(1000), o.TokenAmount)
	assert.Zero(t, o.SolAmount)
}

func TestConfirmerStopsOnContextCancel(t *testing.T) {
	c := NewConfirmer(&fakeChain{}, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Wait(ctx, solana.Signature{})
	assert.ErrorIs(t, err, domain.ErrUnconfirmed)
}

func TestDedupWindow(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("m1"))
	assert.True(t, d.IsDuplicate("m1"))
	assert.False(t, d.IsDuplicate("m2"))

	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("m1"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Zero(t, d.Len())

	d.IsDuplicate("m3")
	d.Forget("m3")
	assert.False(t, d.IsDuplicate("m3"))

	assert.False(t, NewDedup(0).IsDuplicate("x"))
}

type countingThrottle struct {
	keys  []string
	limit int
	err   error
}

func (c *countingThrottle) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	c.keys = append(c.keys, key)
	c.limit = limit
	return c.err
}

func TestBrokerThrottle(t *testing.T) {
	api := &fakeTradeAPI{sig: "s"}
	th := &countingThrottle{}
	e := NewBrokerEngine(api, nil, solana.PublicKey{}, testOptions(), testLogger())
	e.SetThrottle(th, 2)

	require.True(t, e.Buy(context.Background(), buyDecision()).Confirmed())
	assert.Equal(t, []string{brokerThrottleKey}, th.keys)
	assert.Equal(t, 2, th.limit)

	th.err = context.DeadlineExceeded
	o := e.Buy(context.Background(), buyDecision())
	assert.Equal(t, domain.ReasonBrokerError, o.Reason)
	assert.Len(t, api.reqs, 1)

	unthrottled := NewBrokerEngine(api, nil, solana.PublicKey{}, testOptions(), testLogger())
	unthrottled.SetThrottle(th, 0)
	require.True(t, unthrottled.Buy(context.Background(), buyDecision()).Confirmed())
	assert.Len(t, th.keys, 2)
}
