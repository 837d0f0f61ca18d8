package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// startResponse mirrors the certcheck start response.
type startResponse struct {
	VerificationID string     `json:"verification_id"`
	MaskedID       string     `json:"masked_id"`
	Status         string     `json:"status"`
	CodeFilled     bool       `json:"code_filled"`
	Error          *errorBody `json:"error"`
}

// pollResponse mirrors the certcheck poll response.
type pollResponse struct {
	VerificationID string          `json:"verification_id"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result"`
	Error          *errorBody      `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	apiURL := os.Getenv("CERTCHECK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiURL = strings.TrimRight(apiURL, "/")

	s := server.NewMCPServer(
		"certcheck",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	startTool := mcp.NewTool("start_verification",
		mcp.WithDescription("Open the INEP authenticity portal for an ENEM result certificate and fill in its verification code. A person must then solve the CAPTCHA in the opened browser window; use poll_verification to get the outcome."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Verification code printed on the certificate"),
		),
	)
	s.AddTool(startTool, handleStart(apiURL))

	pollTool := mcp.NewTool("poll_verification",
		mcp.WithDescription("Check a verification started with start_verification. Status is pending until the CAPTCHA is solved, then approved, denied or needs_review."),
		mcp.WithString("verification_id",
			mcp.Required(),
			mcp.Description("Handle returned by start_verification"),
		),
		mcp.WithNumber("wait_seconds",
			mcp.Description("Keep polling until a decision or this many seconds pass (default: 0, max: 300)"),
		),
	)
	s.AddTool(pollTool, handlePoll(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleStart(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code is required"), nil
		}

		body, err := json.Marshal(map[string]string{"code": code})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/verifications", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")

		respBody, err := do(client, httpReq)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp startResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		result := fmt.Sprintf("Verification: %s\nExpected CPF: %s\nStatus: %s\n",
			resp.VerificationID, resp.MaskedID, resp.Status)
		if !resp.CodeFilled {
			result += "The code field was not found; type the code into the portal by hand.\n"
		}
		result += "Solve the CAPTCHA in the browser window, then call poll_verification."
		return mcp.NewToolResultText(result), nil
	}
}

func handlePoll(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("verification_id")
		if err != nil {
			return mcp.NewToolResultError("verification_id is required"), nil
		}

		var wait float64
		if v, ok := request.GetArguments()["wait_seconds"].(float64); ok {
			wait = v
		}
		if wait > 300 {
			wait = 300
		}
		deadline := time.Now().Add(time.Duration(wait * float64(time.Second)))

		for {
			resp, err := pollOnce(ctx, client, apiURL, id)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if resp.Error != nil {
				return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
			}
			if resp.Status != "pending" || !time.Now().Before(deadline) {
				return mcp.NewToolResultText(formatPoll(resp)), nil
			}

			select {
			case <-ctx.Done():
				return mcp.NewToolResultError(ctx.Err().Error()), nil
			case <-time.After(3 * time.Second):
			}
		}
	}
}

func pollOnce(ctx context.Context, client *http.Client, apiURL, id string) (*pollResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/verifications/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := do(client, httpReq)
	if err != nil {
		return nil, err
	}

	var resp pollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

func formatPoll(resp *pollResponse) string {
	out := "Status: " + resp.Status
	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, resp.Result, "", "  ") == nil {
			out += "\nResult:\n" + pretty.String()
		}
	}
	return out
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
