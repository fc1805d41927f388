// Package summary turns a user's library statistics into a short piece of
// prose via an OpenAI-compatible chat-completions API. It sits entirely
// downstream of the aggregation engine: it only ever consumes LibraryStats.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/akshaychugh/betterreads/internal/library"
)

// Client calls the chat-completions endpoint with rate limiting and a
// small retry budget for transient upstream failures.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
	maxRetries int
}

func NewClient(baseURL, apiKey, model string, rpm, maxRetries int) *Client {
	if rpm <= 0 {
		rpm = 10
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		maxRetries: maxRetries,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateSummary produces the reading-personality blurb for one user.
func (c *Client) GenerateSummary(ctx context.Context, stats *library.LibraryStats) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(stats)}},
		MaxTokens:   500,
		Temperature: 0.8,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, retryable, err := c.post(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		// Linear backoff is enough at this request volume.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return "", fmt.Errorf("summary generation failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, err
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("upstream returned no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// buildPrompt folds the aggregate stats into the personality prompt.
func buildPrompt(stats *library.LibraryStats) string {
	var b strings.Builder
	b.WriteString("You are the world's leading standup comic with a witty, sarcastic and brutally sassy sense of humour. ")
	b.WriteString("Based on this user's reading data, create a funny and engaging summary.\n\nReading Stats:\n")

	fmt.Fprintf(&b, "- Total books read: %d\n", stats.ReadingStats.BooksRead)
	if stats.TopAuthor != nil {
		fmt.Fprintf(&b, "- Author crush: %s (%d books read, %d on the shelves)\n",
			stats.TopAuthor.Author, stats.TopAuthor.ReadCount, stats.TopAuthor.BookCount)
	}
	if stats.ReadingStats.MaxPages != nil {
		fmt.Fprintf(&b, "- Most ambitious read: %d pages\n", *stats.ReadingStats.MaxPages)
	}
	if n := stats.ShelfDistribution[library.ShelfToRead]; n > 0 {
		fmt.Fprintf(&b, "- Books bought but not yet read: %d\n", n)
	}
	for _, book := range stats.TopRatedBooks {
		rating := 0
		if book.MyRating != nil {
			rating = *book.MyRating
		}
		fmt.Fprintf(&b, "- Loved: %q by %s (%d/5)\n", book.Title, book.Author, rating)
	}

	b.WriteString(`
Instructions:
1. Start with a character assessment based on their reading choices.
2. Include playful sassy jabs about their reading habits (for example, a towering to-read pile).
3. Reference their favorite author or longest book.
4. Add at least one book-related pun.
5. End with a humorous prediction about their reading future.

Keep it conversational, address the reader as "you", maximum three paragraphs, light-hearted rather than mean.`)
	return b.String()
}
