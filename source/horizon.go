// Package source fetches account records from Horizon and caches them.
package source

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"

	"github.com/quantumVector/app-mtla-me/models"
)

const (
	// DefaultQueryTimeout bounds a single Horizon request.
	DefaultQueryTimeout = 30 * time.Second

	// PageLimit is the number of records requested per page.
	PageLimit = 200

	// maxPages guards against a server that never returns an empty page.
	maxPages = 1000

	appName = "mtla-governance"
)

// HorizonError is a non-success response from Horizon.
type HorizonError struct {
	Status int
	Title  string
	Detail string
}

func (e *HorizonError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("horizon error %d (%s): %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("horizon error %d: %s", e.Status, e.Title)
}

// Client reads accounts from a Horizon server through horizonclient.
type Client struct {
	horizonURL   string
	httpClient   *http.Client
	queryTimeout time.Duration
}

// NewClient creates a Horizon client for baseURL. A zero timeout uses
// DefaultQueryTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Client{
		horizonURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
		queryTimeout: timeout,
	}
}

// horizon returns a horizonclient bound to ctx. horizonclient derives its
// request contexts from context.Background, so cancellation of ctx is
// forwarded by the transport.
func (c *Client) horizon(ctx context.Context) *horizonclient.Client {
	hc := &horizonclient.Client{
		HorizonURL: c.horizonURL,
		HTTP:       contextDoer{ctx: ctx, client: c.httpClient},
		AppName:    appName,
	}
	return hc.SetHorizonTimeout(c.queryTimeout)
}

// FetchMembers returns every account holding asset, following pagination
// until an empty page.
func (c *Client) FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error) {
	hc := c.horizon(ctx)
	page, err := hc.Accounts(horizonclient.AccountsRequest{Asset: asset.String(), Limit: PageLimit})

	var records []models.RawMember
	for pages := 0; ; pages++ {
		if err != nil {
			return nil, &models.SourceUnavailableError{Op: "fetch members", Err: translate(err)}
		}
		if len(page.Embedded.Records) == 0 {
			break
		}
		if pages >= maxPages {
			return nil, &models.SourceUnavailableError{Op: "fetch members", Err: fmt.Errorf("more than %d pages", maxPages)}
		}
		for _, acc := range page.Embedded.Records {
			records = append(records, rawMember(acc))
		}
		page, err = hc.NextAccountsPage(page)
	}
	return records, nil
}

// FetchMember returns a single account or models.ErrNotFound.
func (c *Client) FetchMember(ctx context.Context, id string) (*models.RawMember, error) {
	acc, err := c.horizon(ctx).AccountDetail(horizonclient.AccountRequest{AccountID: url.PathEscape(id)})
	if err != nil {
		return nil, translate(err)
	}
	rec := rawMember(acc)
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// FetchCurrentSigners returns the signers configured on account.
func (c *Client) FetchCurrentSigners(ctx context.Context, account string) ([]models.Signer, error) {
	return currentSigners(ctx, c, account)
}

// translate maps horizonclient failures onto models.ErrNotFound and
// HorizonError. Transport errors pass through wrapped.
func translate(err error) error {
	if herr := horizonclient.GetError(err); herr != nil {
		status := herr.Problem.Status
		if herr.Response != nil {
			status = herr.Response.StatusCode
		}
		if status == http.StatusNotFound || horizonclient.IsNotFoundError(err) {
			return models.ErrNotFound
		}
		title := herr.Problem.Title
		if title == "" {
			title = http.StatusText(status)
		}
		return &HorizonError{Status: status, Title: title, Detail: herr.Problem.Detail}
	}
	return fmt.Errorf("failed to reach horizon: %w", err)
}

func rawMember(acc hProtocol.Account) models.RawMember {
	rec := models.RawMember{
		ID:         acc.AccountID,
		Data:       acc.Data,
		HomeDomain: acc.HomeDomain,
	}
	for _, b := range acc.Balances {
		rec.Balances = append(rec.Balances, models.Balance{
			AssetType:   b.Type,
			AssetCode:   b.Code,
			AssetIssuer: b.Issuer,
			Balance:     b.Balance,
		})
	}
	for _, s := range acc.Signers {
		rec.Signers = append(rec.Signers, models.RawSigner{Key: s.Key, Weight: int(s.Weight), Type: s.Type})
	}
	return rec
}

// contextDoer satisfies horizonclient.HTTP and ties every request to ctx in
// addition to the per-request timeout horizonclient sets.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.ctx.Err(); err != nil {
		return nil, err
	}
	// reqCtx ends with horizonclient's own timeout context, which is
	// cancelled once the response body has been decoded.
	reqCtx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(d.ctx, cancel)
	context.AfterFunc(reqCtx, func() { stop() })
	return d.client.Do(req.WithContext(reqCtx))
}

func (d contextDoer) Get(target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return d.client.Do(req)
}

func (d contextDoer) PostForm(target string, data url.Values) (*http.Response, error) {
	return nil, fmt.Errorf("post to %s: read-only horizon client", target)
}

type accountLookup interface {
	FetchMember(ctx context.Context, id string) (*models.RawMember, error)
}

// currentSigners loads account and lists its signers without the account's
// own master key, heaviest first.
func currentSigners(ctx context.Context, l accountLookup, account string) ([]models.Signer, error) {
	rec, err := l.FetchMember(ctx, account)
	if err != nil {
		return nil, &models.SourceUnavailableError{Op: "fetch signers", Err: err}
	}
	signers := make([]models.Signer, 0, len(rec.Signers))
	for _, s := range rec.Signers {
		if s.Key == account {
			continue
		}
		signers = append(signers, models.Signer{ID: s.Key, Weight: s.Weight})
	}
	sort.SliceStable(signers, func(i, j int) bool {
		if signers[i].Weight != signers[j].Weight {
			return signers[i].Weight > signers[j].Weight
		}
		return signers[i].ID < signers[j].ID
	})
	return signers, nil
}
