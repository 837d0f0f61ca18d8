package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/use-agent/certcheck/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Prober checks that the portal answers plain HTTPS requests. It presents a
// Chrome TLS fingerprint so it is treated like the browser sessions are.
type Prober struct {
	target  string
	proxy   string
	timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewProber creates a Prober for target. proxy may be an http(s) proxy URL.
func NewProber(target, proxy string, timeout time.Duration) *Prober {
	return &Prober{
		target:  target,
		proxy:   proxy,
		timeout: timeout,
		dial:    dialTLSChrome,
	}
}

// Probe fetches the portal and reports reachability. It never fails: every
// problem is described in the returned probe.
func (p *Prober) Probe(ctx context.Context) models.PortalProbe {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	status, body, err := p.fetch(ctx)
	probe := models.PortalProbe{
		StatusCode: status,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	probe.Reachable = status < 500
	probe.Title = extractTitle(body)
	return probe
}

func (p *Prober) fetch(ctx context.Context) (int, []byte, error) {
	transport := &http.Transport{DialTLSContext: p.dial}
	if p.proxy != "" {
		proxyURL, err := url.Parse(p.proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("probe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("probe: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// extractTitle extracts the <title> content from raw HTML bytes.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}
