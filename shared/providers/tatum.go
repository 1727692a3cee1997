package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// Wallet is a generated HD wallet
type Wallet struct {
	Mnemonic string `json:"mnemonic"`
	Xpub     string `json:"xpub"`
}

// Balance is the confirmed balance of a single address
type Balance struct {
	Incoming string `json:"incoming"`
	Outgoing string `json:"outgoing"`
}

// WalletProvider generates wallets and addresses and looks up balances
type WalletProvider interface {
	GenerateWallet(mnemonic string) (*Wallet, error)
	GenerateAddress(xpub string, index int) (string, error)
	GetBalance(address string) (*Balance, error)
}

// TatumClient talks to the Tatum bitcoin API. Calls go through a circuit
// breaker so a hanging provider fails fast instead of tying up handlers.
type TatumClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// NewTatumClient creates a wallet client from the API base URL and key
func NewTatumClient(baseURL, apiKey string) *TatumClient {
	return &TatumClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: utils.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (c *TatumClient) get(path string, out interface{}) error {
	return c.breaker.Call(func() error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("wallet provider request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("wallet provider returned status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode wallet provider response: %w", err)
		}
		return nil
	})
}

// GenerateWallet derives a wallet from the mnemonic (a fresh one is
// generated by the provider when the mnemonic is empty)
func (c *TatumClient) GenerateWallet(mnemonic string) (*Wallet, error) {
	path := "/v3/bitcoin/wallet"
	if mnemonic != "" {
		path += "?mnemonic=" + url.QueryEscape(mnemonic)
	}

	var wallet Wallet
	if err := c.get(path, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GenerateAddress derives the address at the given index from an xpub
func (c *TatumClient) GenerateAddress(xpub string, index int) (string, error) {
	var data struct {
		Address string `json:"address"`
	}
	if err := c.get(fmt.Sprintf("/v3/bitcoin/address/%s/%d", xpub, index), &data); err != nil {
		return "", err
	}
	return data.Address, nil
}

// GetBalance looks up the confirmed balance of an address
func (c *TatumClient) GetBalance(address string) (*Balance, error) {
	var balance Balance
	if err := c.get("/v3/bitcoin/address/balance/"+address, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}
