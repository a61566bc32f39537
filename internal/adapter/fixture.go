package adapter

import (
	"context"
	"fmt"
	"math/big"
	"os"

	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fixture is a YAML snapshot of lending and perpetuals protocol state.
// It backs both protocol clients in demo mode and in tests.
type Fixture struct {
	Slot    uint64         `yaml:"slot"`
	Lending LendingFixture `yaml:"lending"`
	Perp    PerpFixture    `yaml:"perp"`
}

// LendingFixture is one lending market
type LendingFixture struct {
	Market      types.PublicKey      `yaml:"market"`
	Reserves    []ReserveFixture     `yaml:"reserves"`
	Obligations []types.LoanSnapshot `yaml:"obligations"`
}

// ReserveFixture is one reserve with a flat borrow rate
type ReserveFixture struct {
	Address    types.PublicKey `yaml:"address"`
	Mint       types.PublicKey `yaml:"mint"`
	Symbol     string          `yaml:"symbol"`
	MintFactor int64           `yaml:"mintFactor"`
	BorrowAPY  decimal.Decimal `yaml:"borrowApy"`
}

// PerpFixture holds perp accounts by wallet and oracle prices by market
type PerpFixture struct {
	Users   []PerpUserFixture `yaml:"users"`
	Oracles []OracleFixture   `yaml:"oracles"`
}

// PerpUserFixture is the perp account of one wallet
type PerpUserFixture struct {
	Authority     types.PublicKey       `yaml:"authority"`
	PerpPositions []PerpPositionAccount `yaml:"perpPositions"`
	SpotPositions []SpotPositionAccount `yaml:"spotPositions"`
}

// OracleFixture is the oracle reading of one perp market
type OracleFixture struct {
	MarketIndex uint16 `yaml:"marketIndex"`
	Price       int64  `yaml:"price"`
	Slot        uint64 `yaml:"slot"`
}

// LoadFixture reads and validates a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture parses and validates fixture YAML
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	for i, r := range f.Lending.Reserves {
		if r.MintFactor <= 0 {
			return fmt.Errorf("fixture reserve %d (%s): mintFactor must be positive", i, r.Symbol)
		}
		if r.Address.IsZero() || r.Mint.IsZero() {
			return fmt.Errorf("fixture reserve %d (%s): address and mint are required", i, r.Symbol)
		}
	}
	for i, u := range f.Perp.Users {
		if u.Authority.IsZero() {
			return fmt.Errorf("fixture perp user %d: authority is required", i)
		}
	}
	return nil
}

// GetSlot returns the fixture slot, so Fixture can stand in for the RPC
func (f *Fixture) GetSlot(ctx context.Context) (uint64, error) {
	return f.Slot, nil
}

// LendingClient returns a lending client serving this fixture
func (f *Fixture) LendingClient() *FixtureLendingClient {
	return &FixtureLendingClient{fixture: &f.Lending}
}

// PerpClient returns a perp client serving this fixture with the given precisions
func (f *Fixture) PerpClient(basePrecision, quotePrecision, pricePrecision int64) *FixturePerpClient {
	return &FixturePerpClient{
		fixture:        &f.Perp,
		basePrecision:  basePrecision,
		quotePrecision: quotePrecision,
		pricePrecision: pricePrecision,
	}
}

// FixtureLendingClient implements LendingClient over a LendingFixture
type FixtureLendingClient struct {
	fixture *LendingFixture
}

// LoadMarket returns the fixture market when address matches it
func (c *FixtureLendingClient) LoadMarket(ctx context.Context, address types.PublicKey) (Market, error) {
	if !c.fixture.Market.IsZero() && c.fixture.Market != address {
		return nil, apperrors.NewNotFoundError("lending market", address.String())
	}
	return &fixtureMarket{address: address, fixture: c.fixture}, nil
}

type fixtureMarket struct {
	address types.PublicKey
	fixture *LendingFixture
}

func (m *fixtureMarket) Address() types.PublicKey {
	return m.address
}

func (m *fixtureMarket) GetAllUserObligations(ctx context.Context, owner types.PublicKey) ([]types.LoanSnapshot, error) {
	var loans []types.LoanSnapshot
	for _, loan := range m.fixture.Obligations {
		if loan.Owner == owner {
			loans = append(loans, loan)
		}
	}
	return loans, nil
}

func (m *fixtureMarket) GetReserveByMint(mint types.PublicKey) (Reserve, bool) {
	for i := range m.fixture.Reserves {
		if m.fixture.Reserves[i].Mint == mint {
			return &fixtureReserve{cfg: m.fixture.Reserves[i]}, true
		}
	}
	return nil, false
}

type fixtureReserve struct {
	cfg ReserveFixture
}

func (r *fixtureReserve) Address() types.PublicKey { return r.cfg.Address }
func (r *fixtureReserve) Mint() types.PublicKey    { return r.cfg.Mint }
func (r *fixtureReserve) Symbol() string           { return r.cfg.Symbol }
func (r *fixtureReserve) MintFactor() int64        { return r.cfg.MintFactor }

// TotalBorrowAPY ignores slot; fixture rates are flat
func (r *fixtureReserve) TotalBorrowAPY(slot uint64) decimal.Decimal {
	return r.cfg.BorrowAPY
}

// FixturePerpClient implements PerpClient over a PerpFixture
type FixturePerpClient struct {
	fixture        *PerpFixture
	basePrecision  int64
	quotePrecision int64
	pricePrecision int64
}

// LoadUser returns the wallet's perp account. A wallet with no account
// yields a user whose Exists reports false.
func (c *FixturePerpClient) LoadUser(ctx context.Context, wallet Wallet) (PerpUser, error) {
	key := wallet.PublicKey()
	for i := range c.fixture.Users {
		if c.fixture.Users[i].Authority == key {
			return &fixturePerpUser{account: &c.fixture.Users[i]}, nil
		}
	}
	return &fixturePerpUser{}, nil
}

// GetOracleDataForPerpMarket returns the configured oracle reading
func (c *FixturePerpClient) GetOracleDataForPerpMarket(ctx context.Context, marketIndex uint16) (OraclePriceData, error) {
	for _, o := range c.fixture.Oracles {
		if o.MarketIndex == marketIndex {
			return OraclePriceData{Price: o.Price, Slot: o.Slot}, nil
		}
	}
	return OraclePriceData{}, apperrors.NewNotFoundError("perp oracle", fmt.Sprintf("%d", marketIndex))
}

// CalculateEntryPrice returns |quoteEntry / base| at price precision
func (c *FixturePerpClient) CalculateEntryPrice(position PerpPositionAccount) int64 {
	if position.BaseAssetAmount == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(position.QuoteEntryAmount), big.NewInt(c.basePrecision))
	num.Mul(num, big.NewInt(c.pricePrecision))
	den := new(big.Int).Mul(big.NewInt(position.BaseAssetAmount), big.NewInt(c.quotePrecision))
	price := num.Quo(num, den)
	return price.Abs(price).Int64()
}

// CalculatePositionPNL returns base value at the oracle price plus the quote
// amount, at quote precision. Funding is not modelled.
func (c *FixturePerpClient) CalculatePositionPNL(ctx context.Context, position PerpPositionAccount, oracle OraclePriceData) (int64, error) {
	value := new(big.Int).Mul(big.NewInt(position.BaseAssetAmount), big.NewInt(oracle.Price))
	value.Mul(value, big.NewInt(c.quotePrecision))
	value.Quo(value, new(big.Int).Mul(big.NewInt(c.basePrecision), big.NewInt(c.pricePrecision)))
	value.Add(value, big.NewInt(position.QuoteAssetAmount))
	if !value.IsInt64() {
		return 0, apperrors.NewParseError("perp pnl", fmt.Errorf("pnl %s overflows int64", value))
	}
	return value.Int64(), nil
}

type fixturePerpUser struct {
	account *PerpUserFixture
}

func (u *fixturePerpUser) Exists() bool {
	return u.account != nil
}

func (u *fixturePerpUser) GetPerpPosition(marketIndex uint16) (PerpPositionAccount, bool) {
	if u.account == nil {
		return PerpPositionAccount{}, false
	}
	for _, p := range u.account.PerpPositions {
		if p.MarketIndex == marketIndex && p.IsOpen() {
			return p, true
		}
	}
	return PerpPositionAccount{}, false
}

func (u *fixturePerpUser) GetSpotPosition(marketIndex uint16) (SpotPositionAccount, bool) {
	if u.account == nil {
		return SpotPositionAccount{}, false
	}
	for _, s := range u.account.SpotPositions {
		if s.MarketIndex == marketIndex {
			return s, true
		}
	}
	return SpotPositionAccount{}, false
}
