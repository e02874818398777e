package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reconciled-dev/reconciled/internal/config"
)

// Portal reads the account's total value from a banking portal that only
// offers a browser login: verification token, username and date of birth,
// then three digits of a secure number, then the landing page's totals row.
// Extraction is regexp-based against the handful of markup shapes the portal
// serves; a failed match is a fatal fetch error.
type Portal struct {
	acct *config.AccountConfig
	http *http.Client
}

// NewPortal builds the source for one portal account.
func NewPortal(acct *config.AccountConfig) (*Portal, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("source %s: creating cookie jar: %w", acct.Name, err)
	}
	return &Portal{
		acct: acct,
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

func (p *Portal) Name() string                   { return p.acct.Name }
func (p *Portal) Account() *config.AccountConfig { return p.acct }

// FetchBalance walks the portal's two-step login and sums the totals row of
// the landing page.
func (p *Portal) FetchBalance(ctx context.Context) (float64, error) {
	cfg := p.acct.Portal
	stepOneURL := strings.TrimRight(cfg.BaseURL, "/") + "/my-accounts/login-step-one"
	stepTwoURL := strings.TrimRight(cfg.BaseURL, "/") + "/my-accounts/login-step-two"

	page, err := p.get(ctx, stepOneURL)
	if err != nil {
		return 0, err
	}
	vt, err := verificationToken(page)
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", p.acct.Name, err)
	}

	if _, err := p.post(ctx, stepOneURL, url.Values{
		"hl_vt":         {vt},
		"username":      {cfg.Username},
		"date-of-birth": {cfg.DateOfBirth},
	}); err != nil {
		return 0, err
	}

	page, err = p.get(ctx, stepTwoURL)
	if err != nil {
		return 0, err
	}
	indices, err := secureNumberIndices(page)
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", p.acct.Name, err)
	}

	form := url.Values{
		"hl_vt":                        {vt},
		"online-password-verification": {cfg.Password},
		"submit":                       {"Log in"},
	}
	for i, idx := range indices {
		form.Set(fmt.Sprintf("secure-number[%d]", i+1), cfg.SecureNumbers[idx])
	}

	home, err := p.post(ctx, stepTwoURL, form)
	if err != nil {
		return 0, err
	}

	total, err := portfolioTotal(home)
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", p.acct.Name, err)
	}
	return total, nil
}

func (p *Portal) get(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("source %s: building request: %w", p.acct.Name, err)
	}
	return p.fetch(req)
}

func (p *Portal) post(ctx context.Context, u string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("source %s: building request: %w", p.acct.Name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.fetch(req)
}

func (p *Portal) fetch(req *http.Request) (string, error) {
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("source %s: %s %s: %w", p.acct.Name, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("source %s: %s %s returned %s", p.acct.Name, req.Method, req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("source %s: reading %s: %w", p.acct.Name, req.URL.Path, err)
	}
	return string(body), nil
}

var (
	vtPattern     = regexp.MustCompile(`<input[^>]*name="hl_vt"[^>]*value="([^"]+)"`)
	digitPattern  = regexp.MustCompile(`Enter the (\d)\w{2} digit from your Secure Number`)
	tfootPattern  = regexp.MustCompile(`(?s)<tfoot>.*?</tfoot>`)
	cellPattern   = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	amountPattern = regexp.MustCompile(`([\d,]+\.\d{2})`)
)

// verificationToken pulls the hl_vt hidden-input value out of a login page.
func verificationToken(page string) (string, error) {
	m := vtPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("portal page has no hl_vt input")
	}
	return m[1], nil
}

// secureNumberIndices returns which three digits of the six-digit secure
// number the portal asks for, as zero-based indices in prompt order.
func secureNumberIndices(page string) ([3]int, error) {
	var indices [3]int
	ms := digitPattern.FindAllStringSubmatch(page, -1)
	if len(ms) < 3 {
		return indices, fmt.Errorf("portal step-two page asked for %d secure digits, want 3", len(ms))
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(ms[i][1])
		if err != nil || n < 1 || n > 6 {
			return indices, fmt.Errorf("portal asked for secure digit %q", ms[i][1])
		}
		indices[i] = n - 1
	}
	return indices, nil
}

// portfolioTotal sums the stock and cash cells of the landing page's totals
// row.
func portfolioTotal(page string) (float64, error) {
	tfoot := tfootPattern.FindString(page)
	if tfoot == "" {
		return 0, fmt.Errorf("portal landing page has no totals row")
	}

	cells := cellPattern.FindAllStringSubmatch(tfoot, -1)
	if len(cells) < 3 {
		return 0, fmt.Errorf("portal totals row has %d cells, want at least 3", len(cells))
	}

	// Cells 2 and 3 of the row are the stock total and the cash total.
	var total float64
	for _, cell := range cells[1:3] {
		amount, err := parseAmount(cell[1])
		if err != nil {
			return 0, err
		}
		total += amount
	}
	return total, nil
}

func parseAmount(cell string) (float64, error) {
	m := amountPattern.FindStringSubmatch(cell)
	if m == nil {
		return 0, fmt.Errorf("no amount in totals cell %q", strings.TrimSpace(cell))
	}
	return strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
}
