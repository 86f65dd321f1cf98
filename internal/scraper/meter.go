package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/meterwatch/pkg/models"
)

// blockedMarker is shown instead of the meter page to non-WeChat clients
const blockedMarker = "请在微信客户端打开链接"

// beijing is the meter vendor's timezone, used for update_time
var beijing = time.FixedZone("CST", 8*60*60)

var (
	namePattern   = regexp.MustCompile(`(?i)表&ensp;名&ensp;称:</span>\s*<label[^>]*>([^<]+)</label>`)
	numberPattern = regexp.MustCompile(`(?i)表&ensp;&ensp;&ensp;&ensp;号:</span>\s*<label[^>]*>([^<]+)</label>`)
	powerPattern  = regexp.MustCompile(`(?i)剩余电量:</span>\s*<label[^>]*>([\d.]+)</label>`)
	amountPattern = regexp.MustCompile(`(?i)剩余金额:</span>\s*<label[^>]*>([\d.]+)</label>`)
	pricePattern  = regexp.MustCompile(`(?i)综合费用:</span>\s*<label[^>]*>([\d.]+)</label>`)
)

// BlockedError is returned when the meter page refuses the client
type BlockedError struct {
	URL string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("meter page %s requires the WeChat client", e.URL)
}

// MeterScraper fetches the prepaid meter page over plain HTTP
type MeterScraper struct {
	userAgent string
	client    *http.Client
	now       func() time.Time
}

// NewMeterScraper creates a scraper that identifies as userAgent
func NewMeterScraper(userAgent string) *MeterScraper {
	return &MeterScraper{
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
}

// Fetch downloads and parses the meter page at url
func (s *MeterScraper) Fetch(ctx context.Context, url string) (*models.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meter page returned status %d", resp.StatusCode)
	}

	html := string(body)
	if strings.Contains(html, blockedMarker) {
		return nil, &BlockedError{URL: url}
	}

	return Parse(html, s.now()), nil
}

// Parse extracts a reading from the meter page HTML. Fields that cannot be
// found keep their defaults.
func Parse(html string, now time.Time) *models.Reading {
	r := &models.Reading{
		Name:       "unknown meter",
		UpdateTime: now.In(beijing).Format(time.RFC3339),
		Status:     "success",
	}

	if v, ok := match(namePattern, html); ok {
		r.Name = v
	}
	if v, ok := match(numberPattern, html); ok {
		r.Number = v
	}
	r.RemainingPower = matchFloat(powerPattern, html)
	r.RemainingAmount = matchFloat(amountPattern, html)
	r.UnitPrice = matchFloat(pricePattern, html)

	return r
}

func match(re *regexp.Regexp, html string) (string, bool) {
	m := re.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func matchFloat(re *regexp.Regexp, html string) float64 {
	s, ok := match(re, html)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// SaveReading writes the reading as the snapshot document at path
func SaveReading(path string, r *models.Reading) error {
	return SaveSnapshot(path, models.MeterFileFromReading(*r))
}

// SaveSnapshot writes the snapshot document as indented JSON
func SaveSnapshot(path string, f models.MeterFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
