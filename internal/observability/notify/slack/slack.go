// Package slack posts generation job failures to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medforge/contentgen/internal/observability/notify"
)

const maxErrorBody = 512

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL     string
	Channel        string
	Username       string
	Timeout        time.Duration
	RetryLimit     int
	Client         *http.Client
	TopicURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL  string
	channel     string
	username    string
	retryLimit  int
	topicPrefix *url.URL
	client      *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   strings.TrimSpace(cfg.Username),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}
	if c.username == "" {
		c.username = "contentgen"
	}
	if prefix := strings.TrimSpace(cfg.TopicURLPrefix); prefix != "" {
		if u, err := url.Parse(prefix); err == nil && u.Scheme != "" && u.Host != "" {
			c.topicPrefix = u
		}
	}
	return c, nil
}

// SendJobFailure posts a formatted message, retrying with linear backoff.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) formatMessage(p notify.JobFailurePayload) map[string]any {
	ts := p.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString("*Content generation job failed*")
	if p.JobID != "" {
		fmt.Fprintf(&b, " `%s`", p.JobID)
	}
	b.WriteByte('\n')

	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	attempts := ""
	if p.Attempts > 0 {
		attempts = strconv.Itoa(p.Attempts)
	}
	writeField(&b, "Severity", severity)
	writeField(&b, "Topic", c.topicValue(p.TopicID))
	writeField(&b, "Modes", strings.Join(p.Modes, ", "))
	writeField(&b, "Attempts", attempts)
	writeField(&b, "Submitted by", escape(p.SubmittedBy))
	writeField(&b, "Error class", p.ErrorClass)
	writeField(&b, "Error", escape(p.Error))

	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("• Metadata:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(ts.UTC().Format(time.RFC3339))

	msg := map[string]any{"text": b.String(), "username": c.username}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) topicValue(topicID string) string {
	id := strings.TrimSpace(topicID)
	if id == "" {
		return ""
	}
	if c.topicPrefix == nil {
		return escape(id)
	}
	return fmt.Sprintf("<%s|%s>", c.topicPrefix.JoinPath(id).String(), escape(id))
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return slackEscaper.Replace(s)
}
