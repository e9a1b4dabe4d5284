// internal/service/indexer/infrastructure/ledger_audit_client.go
package infrastructure

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"chowfast/internal/pkg/httpclient"
	ledger "chowfast/internal/service/ledger/domain"

	"github.com/pkg/errors"
)

// LedgerAuditClient 通过账本服务的 GET /audit 接口分页拉取审计记录
type LedgerAuditClient struct {
	client  *httpclient.Client
	baseURL string
}

func NewLedgerAuditClient(client *httpclient.Client, baseURL string) *LedgerAuditClient {
	return &LedgerAuditClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch 返回 seq > after 的记录，最多 limit 条
func (c *LedgerAuditClient) Fetch(ctx context.Context, after uint64, limit int) ([]*ledger.Envelope, error) {
	var page struct {
		Records []*ledger.Envelope `json:"records"`
	}
	params := url.Values{
		"from":  {strconv.FormatUint(after, 10)},
		"limit": {strconv.Itoa(limit)},
	}
	if err := c.client.GetJSON(ctx, c.baseURL+"/audit", params, &page); err != nil {
		return nil, errors.Wrapf(err, "fetch audit records after %d", after)
	}
	return page.Records, nil
}
